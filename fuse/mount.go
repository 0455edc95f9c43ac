package fuse

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"
	easyfs "github.com/unconsolable/easyfs/fs"
)

// MountOptions contains options for mounting the filesystem
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	Debug      bool
}

// Mount serves 'v' at the mount point until the filesystem is unmounted or
// the process receives SIGINT or SIGTERM.
func Mount(v *easyfs.FileSystem, options MountOptions) error {
	mountOpts := []fuse.MountOption{
		fuse.FSName("easyfs"),
		fuse.Subtype("easyfs"),
	}
	if options.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			log.Debugf("FUSE: %v", msg)
		}
	}

	log.Infof("Mounting easyfs at %s", options.MountPoint)
	c, err := fuse.Mount(options.MountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}
	defer c.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		log.Infof("Unmounting %s", options.MountPoint)
		if err := fuse.Unmount(options.MountPoint); err != nil {
			log.Warnf("Failed to unmount cleanly: %v", err)
		}
	}()

	if err := fs.Serve(c, NewFS(v)); err != nil {
		return fmt.Errorf("serving filesystem: %w", err)
	}
	v.Sync()
	return nil
}
