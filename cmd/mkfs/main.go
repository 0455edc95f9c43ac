// This command is used to create a new easyfs image, optionally filled with
// the regular files of a host directory.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/device"
	"github.com/unconsolable/easyfs/file"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
)

func ferr(f string, s ...interface{}) {
	fmt.Fprintf(os.Stderr, f, s...)
}

func main() {
	var filename string
	var source string
	var volumeID string
	var blockCount uint
	var inodeBitmap uint
	var help bool
	var query bool
	var debug bool

	// Define commandline flags
	flag.StringVar(&filename, "file", "", "the image filename")
	flag.StringVar(&source, "source", "", "a directory whose regular files are copied into the image")
	flag.StringVar(&volumeID, "uuid", "", "the volume UUID (random if empty)")
	flag.UintVar(&blockCount, "size", 16*2048, "the size of the filesystem (in blocks)")
	flag.UintVar(&inodeBitmap, "inodebitmap", 1, "the number of inode bitmap blocks (4096 inodes each)")
	flag.BoolVar(&help, "help", false, "display the usage for this command")
	flag.BoolVar(&query, "query", false, "query the image file rather than create")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	// Parse the flags from the commandline
	flag.Parse()

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	// Check to ensure a filename is given on the commandline
	if len(filename) <= 0 {
		ferr("Must specify a filename\n")
		help = true
	}

	if help {
		ferr("Usage: %s -file <filename>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(-1)
	}

	if query {
		queryImage(filename)
		return
	}

	var opts []fs.Option
	if volumeID != "" {
		id, err := uuid.Parse(volumeID)
		if err != nil {
			log.Fatalf("Invalid volume UUID %q: %s", volumeID, err)
		}
		opts = append(opts, fs.WithUUID(id))
	}

	dev, err := device.CreateFileDevice(filename, int(blockCount))
	if err != nil {
		log.Fatalf("Error creating image file '%s': %s", filename, err)
	}
	efs, err := fs.Create(dev, uint32(blockCount), uint32(inodeBitmap), opts...)
	if err != nil {
		log.Fatalf("Error formatting '%s': %s", filename, err)
	}
	defer efs.Close()

	if source != "" {
		if err := pack(inode.Root(efs), source); err != nil {
			log.Fatalf("Error copying files from '%s': %s", source, err)
		}
	}

	sb := efs.SuperBlock()
	fmt.Printf("Created %s: volume %s, %d blocks, %d inodes, %d data blocks\n",
		filename, uuid.UUID(sb.UUID), sb.TotalBlocks, inodeBitmap*common.BLOCK_BITS, sb.DataAreaBlocks)
}

// pack copies the regular files of host directory 'dir' into 'root'
func pack(root *inode.Inode, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if len(e.Name()) > common.NAME_LENGTH_LIMIT {
			log.Warnf("Skipping %s: name longer than %d bytes", e.Name(), common.NAME_LENGTH_LIMIT)
			continue
		}
		if err := packFile(root, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

func packFile(root *inode.Inode, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := file.Open(root, name, file.O_WRONLY|file.O_CREATE)
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		return err
	}
	log.Debugf("Copied %s (%d bytes) to inode %d", name, n, dst.Inode().Inum())
	return nil
}

func queryImage(filename string) {
	dev, err := device.NewFileDevice(filename)
	if err != nil {
		log.Fatalf("Error opening image file '%s': %s", filename, err)
	}
	efs, err := fs.Open(dev)
	if err != nil {
		log.Fatalf("Error opening filesystem on '%s': %s", filename, err)
	}
	defer efs.Close()

	sb := efs.SuperBlock()
	u := efs.Usage()
	fmt.Printf("Volume:              %s\n", uuid.UUID(sb.UUID))
	fmt.Printf("Magic number:        0x%x\n", sb.Magic)
	fmt.Printf("Total blocks:        %d\n", sb.TotalBlocks)
	fmt.Printf("Inode bitmap blocks: %d\n", sb.InodeBitmapBlocks)
	fmt.Printf("Inode area blocks:   %d\n", sb.InodeAreaBlocks)
	fmt.Printf("Data bitmap blocks:  %d\n", sb.DataBitmapBlocks)
	fmt.Printf("Data area blocks:    %d\n", sb.DataAreaBlocks)
	fmt.Printf("Inodes in use:       %d/%d\n", u.InodesUsed, u.InodesTotal)
	fmt.Printf("Data blocks in use:  %d/%d\n", u.BlocksUsed, u.BlocksTotal)
	for _, name := range inode.Root(efs).Ls() {
		fmt.Printf("  %s\n", name)
	}
}
