// This command checks the consistency of an easyfs image. It reports
// problems but does not repair them.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/check"
	"github.com/unconsolable/easyfs/device"
	"github.com/unconsolable/easyfs/fs"
)

var filename *string = flag.String("file", "fs.img", "the disk image to check")
var help *bool = flag.Bool("help", false, "print usage information")
var debug *bool = flag.Bool("debug", false, "enable debug logging")

func main() {
	flag.Parse()

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <filename>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(-1)
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	dev, err := device.NewFileDevice(*filename)
	if err != nil {
		log.Fatalf("Could not open '%s': %s", *filename, err)
	}
	efs, err := fs.Open(dev)
	if err != nil {
		log.Fatalf("Could not open filesystem on '%s': %s", *filename, err)
	}
	defer efs.Close()

	r := check.Check(efs)
	u := efs.Usage()
	fmt.Printf("%8d entries (%d dead)\n", r.Entries, r.Tombstones)
	fmt.Printf("%8d inodes in use of %d\n", r.Inodes, u.InodesTotal)
	fmt.Printf("%8d unlinked inodes\n", r.Unlinked)
	fmt.Printf("%8d data blocks in use of %d\n", u.BlocksUsed, u.BlocksTotal)

	if r.Clean() {
		fmt.Println("No problems found")
		return
	}
	fmt.Printf("%d problems found:\n", len(r.Problems))
	for _, p := range r.Problems {
		fmt.Printf("  %s\n", p)
	}
	efs.Close()
	os.Exit(1)
}
