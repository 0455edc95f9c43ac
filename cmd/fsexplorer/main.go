package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/check"
	"github.com/unconsolable/easyfs/debug"
	"github.com/unconsolable/easyfs/device"
	"github.com/unconsolable/easyfs/file"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
)

func repl(filename string, efs *fs.FileSystem, in io.Reader, out io.Writer) {
	sb := efs.SuperBlock()
	fmt.Fprintln(out, "Welcome to the easyfs explorer!")
	fmt.Fprintf(out, "Attached to %s\n", filename)
	fmt.Fprintf(out, "Volume %s, magic number is 0x%x\n", uuid.UUID(sb.UUID), sb.Magic)
	fmt.Fprintln(out, "Enter '?' for a list of commands.")

	root := inode.Root(efs)
	buf := bufio.NewReader(in)

	for {
		// Print the prompt
		fmt.Fprint(out, "/> ")

		// Read another line of input
		read, err := buf.ReadString('\n')
		if err != nil {
			fmt.Fprint(out, "\n")
			break
		}

		tokens := strings.Fields(read)
		if len(tokens) == 0 {
			continue
		}

		if tokens[0] == "quit" || tokens[0] == "exit" {
			break
		}
		if err := command(out, efs, root, tokens); err != nil {
			fmt.Fprintf(out, "%s: %s\n", tokens[0], err)
		}
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "\t?\thelp")
	fmt.Fprintln(out, "\tls\tshow directory listing")
	fmt.Fprintln(out, "\tcat\tshow file contents")
	fmt.Fprintln(out, "\ttouch\tcreate an empty file")
	fmt.Fprintln(out, "\twrite\treplace a file's contents: write name text...")
	fmt.Fprintln(out, "\tappend\tappend to a file: append name text...")
	fmt.Fprintln(out, "\tln\tlink a file: ln old new")
	fmt.Fprintln(out, "\trm\tunlink a file")
	fmt.Fprintln(out, "\tstat\tshow file metadata")
	fmt.Fprintln(out, "\tdf\tshow volume usage")
	fmt.Fprintln(out, "\tdump\tprint a raw block")
	fmt.Fprintln(out, "\tfsck\tcheck the volume")
	fmt.Fprintln(out, "\tquit\tleave the explorer")
}

type errUsage string

func (e errUsage) Error() string { return "usage: " + string(e) }

func command(out io.Writer, efs *fs.FileSystem, root *inode.Inode, tokens []string) error {
	args := tokens[1:]
	switch tokens[0] {
	case "?":
		usage(out)
	case "ls":
		for _, d := range root.Entries() {
			fmt.Fprintf(out, "%8d %s\n", d.Inum(), d.Name())
		}
	case "cat":
		if len(args) != 1 {
			return errUsage("cat name")
		}
		f, err := file.Open(root, args[0], file.O_RDONLY)
		if err != nil {
			return err
		}
		data, err := f.ReadAll()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", data)
	case "touch":
		if len(args) != 1 {
			return errUsage("touch name")
		}
		_, err := root.Create(args[0])
		return err
	case "write", "append":
		if len(args) < 1 {
			return errUsage(tokens[0] + " name text...")
		}
		flags := file.O_WRONLY | file.O_CREATE
		if tokens[0] == "append" {
			flags = file.O_WRONLY
		}
		f, err := file.Open(root, args[0], flags)
		if err != nil {
			return err
		}
		if tokens[0] == "append" {
			f.Seek(0, io.SeekEnd)
		}
		_, err = f.Write([]byte(strings.Join(args[1:], " ")))
		return err
	case "ln":
		if len(args) != 2 {
			return errUsage("ln old new")
		}
		return root.Linkat(args[0], args[1])
	case "rm":
		if len(args) != 1 {
			return errUsage("rm name")
		}
		return root.Unlinkat(args[0])
	case "stat":
		if len(args) != 1 {
			return errUsage("stat name")
		}
		rip := root.Find(args[0])
		if rip == nil {
			return fmt.Errorf("%s not found", args[0])
		}
		st := rip.Stat()
		fmt.Fprintf(out, "inode %d, %d links, %d bytes, dir=%v\n", st.Inum, st.HardLink, st.Size, st.IsDir)
	case "df":
		u := efs.Usage()
		fmt.Fprintf(out, "inodes: %d/%d, data blocks: %d/%d\n", u.InodesUsed, u.InodesTotal, u.BlocksUsed, u.BlocksTotal)
	case "dump":
		if len(args) != 1 {
			return errUsage("dump block")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		return debug.Block(out, efs, n)
	case "fsck":
		r := check.Check(efs)
		fmt.Fprintf(out, "%d entries (%d dead), %d inodes, %d blocks\n", r.Entries, r.Tombstones, r.Inodes, r.Blocks)
		for _, p := range r.Problems {
			fmt.Fprintf(out, "  %s\n", p)
		}
	default:
		fmt.Fprintf(out, "Unknown command '%s', enter '?' for help\n", tokens[0])
	}
	return nil
}

func main() {
	var filename string
	var verbose bool
	flag.StringVar(&filename, "file", "fs.img", "the image to explore")
	flag.BoolVar(&verbose, "debug", false, "enable debug logging")
	flag.Parse()

	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	dev, err := device.NewFileDevice(filename)
	if err != nil {
		log.Fatalf("Could not open '%s': %s", filename, err)
	}
	efs, err := fs.Open(dev)
	if err != nil {
		log.Fatalf("Could not open filesystem on '%s': %s", filename, err)
	}
	defer efs.Close()

	repl(filename, efs, os.Stdin, os.Stdout)
}
