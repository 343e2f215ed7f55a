// Command clusterfs-mkfs formats a disk image as a clusterfs volume.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/tchajed/goose/machine/disk"
	"github.com/urfave/cli/v2"

	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/mkfs"
)

func main() {
	app := &cli.App{
		Name:      "clusterfs-mkfs",
		Usage:     "format a disk image as a clusterfs volume",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "volume name",
				Value:   "clusterfs",
			},
			&cli.UintFlag{
				Name:    "inodes",
				Aliases: []string{"i"},
				Usage:   "total inode count (0 derives it from the device size)",
			},
			&cli.Uint64Flag{
				Name:    "size",
				Aliases: []string{"s"},
				Usage:   "device size in blocks (grows or truncates the image)",
				Value:   1024,
			},
			&cli.BoolFlag{
				Name:    "zero",
				Aliases: []string{"z"},
				Usage:   "zero every data cluster body",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "suppress the volume summary",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one image path")
			}
			d, err := disk.NewFileDisk(c.Args().First(), c.Uint64("size"))
			if err != nil {
				return err
			}
			defer d.Close()
			sb, err := mkfs.Format(device.New(d), mkfs.Options{
				Name:   c.String("name"),
				Inodes: uint32(c.Uint("inodes")),
				Zero:   c.Bool("zero"),
			})
			if err != nil {
				return err
			}
			if !c.Bool("quiet") {
				fmt.Printf("%s: %d blocks, %d inodes, %d data clusters, serial %s\n",
					c.Args().First(), sb.NTotal, sb.ITotal, sb.DZoneTotal, sb.Serial)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
