package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/device"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/fuse"
)

func main() {
	// Parse command line arguments
	image := flag.String("file", "", "the easyfs image to mount")
	mountPoint := flag.String("mount", "", "Mount point for the filesystem")
	readOnly := flag.Bool("readonly", false, "Mount filesystem as read-only")
	cacheSlots := flag.Int("cache", 64, "number of blocks held in the block cache")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *image == "" || *mountPoint == "" {
		fmt.Println("Error: image and mount point are required")
		flag.Usage()
		os.Exit(1)
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	// Ensure mount point exists
	if _, err := os.Stat(*mountPoint); os.IsNotExist(err) {
		log.Infof("Creating mount point: %s", *mountPoint)
		if err := os.MkdirAll(*mountPoint, 0755); err != nil {
			log.Fatalf("Failed to create mount point: %v", err)
		}
	}

	dev, err := device.NewFileDevice(*image)
	if err != nil {
		log.Fatalf("Failed to open image: %v", err)
	}
	efs, err := fs.Open(dev, fs.WithCacheSlots(*cacheSlots))
	if err != nil {
		log.Fatalf("Failed to open filesystem: %v", err)
	}
	defer efs.Close()

	options := fuse.MountOptions{
		MountPoint: *mountPoint,
		ReadOnly:   *readOnly,
		Debug:      *debug,
	}
	if err := fuse.Mount(efs, options); err != nil {
		log.Errorf("Error mounting filesystem: %v", err)
		efs.Close()
		os.Exit(1)
	}
}
