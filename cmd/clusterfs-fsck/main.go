// Command clusterfs-fsck validates the on-disk structures of a clusterfs
// volume image without mounting it.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tchajed/goose/machine/disk"
	"github.com/urfave/cli/v2"

	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/fsck"
)

func main() {
	app := &cli.App{
		Name:      "clusterfs-fsck",
		Usage:     "check a clusterfs volume image",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log",
				Aliases: []string{"l"},
				Usage:   "write the report and status-table dump to this file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one image path")
			}
			path := c.Args().First()
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			d, err := disk.NewFileDisk(path, uint64(fi.Size())/disk.BlockSize)
			if err != nil {
				return err
			}
			defer d.Close()
			var w io.Writer = os.Stdout
			if logPath := c.String("log"); logPath != "" {
				lf, err := os.OpenFile(logPath,
					os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return err
				}
				defer lf.Close()
				w = lf
			}
			ck, err := fsck.New(device.New(d))
			if err != nil {
				return err
			}
			if err := ck.Run(w); err != nil {
				return cli.Exit("volume is inconsistent", 1)
			}
			fmt.Println("volume is consistent")
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
