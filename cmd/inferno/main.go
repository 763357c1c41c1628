// Command inferno writes bootable disk images to removable USB drives:
// enumerate drives, fetch or inspect an image, write it with verification,
// cancel with Ctrl-C.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inferno/internal/config"
	"inferno/internal/device"
	"inferno/internal/engine"
	"inferno/internal/fetch"
	"inferno/internal/image"
	"inferno/internal/progress"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "inferno",
		Short:         "Write bootable disk images to removable USB drives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: ./inferno.yaml, ~/.config/inferno/inferno.yaml)")

	root.AddCommand(listCmd(), inspectCmd(), writeCmd(), fetchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List removable USB drives",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := device.NewCatalog().Enumerate(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No removable devices found")
				return nil
			}
			for _, d := range devices {
				line := d.String()
				if d.DisplayLabel != "" {
					line += " [" + d.DisplayLabel + "]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <image>",
		Short: "Validate an image file and show its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()
			fmt.Printf("Path:   %s\n", img.Path)
			fmt.Printf("Size:   %s (%d bytes)\n", humanize.IBytes(uint64(img.Size)), img.Size)
			fmt.Printf("Format: %s\n", img.Format)
			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	var (
		yes      bool
		noVerify bool
	)
	cmd := &cobra.Command{
		Use:   "write <image> <device>",
		Short: "Write an image to a removable device (destroys its contents)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd.Context(), args[0], args[1], yes, noVerify)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the post-write verification pass")
	return cmd
}

func runWrite(ctx context.Context, imagePath, identity string, yes, noVerify bool) error {
	elevated, err := device.Elevated()
	if err != nil {
		return err
	}
	if !elevated {
		return errors.New("writing to a device requires elevated permissions (run with sudo or as administrator)")
	}

	devices, err := device.NewCatalog().Enumerate(ctx)
	if err != nil {
		return err
	}
	var desc *device.Descriptor
	for i := range devices {
		if devices[i].Identity == identity {
			desc = &devices[i]
			break
		}
	}
	if desc == nil {
		return fmt.Errorf("device %s not found among removable devices (try 'inferno list')", identity)
	}

	img, err := image.Open(imagePath)
	if err != nil {
		return err
	}

	// Restate exactly what is about to be destroyed before arming the
	// engine's overwrite gate.
	fmt.Printf("About to write %s (%s) to %s\n", img.Path, humanize.IBytes(uint64(img.Size)), desc)
	fmt.Println("ALL DATA ON THE DEVICE WILL BE LOST.")
	if !yes && !confirm() {
		img.Close()
		fmt.Println("Aborted.")
		return nil
	}

	mounted, err := device.MountedPartitions(desc.Identity)
	if err != nil {
		log.Warnf("could not check mounted partitions: %v", err)
	} else if len(mounted) > 0 {
		fmt.Printf("Unmounting %s\n", strings.Join(mounted, ", "))
		if err := device.Unmount(mounted); err != nil {
			img.Close()
			return err
		}
	}

	opts := cfg.Options()
	opts.AllowOverwrite = true
	if noVerify {
		opts.VerifyAfterWrite = false
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	op, err := engine.New().Start(ctx, *desc, img, opts)
	if err != nil {
		img.Close()
		return err
	}

	events, unsub := op.Events().Subscribe()
	defer unsub()
	for ev := range events {
		renderEvent(ev)
	}
	fmt.Println()

	res, err := op.Result(context.Background())
	if err != nil {
		return err
	}
	return reportResult(res, opts.VerifyAfterWrite)
}

func confirm() bool {
	fmt.Print("Continue? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(response)
	return response == "y" || response == "Y"
}

func renderEvent(ev progress.Event) {
	fmt.Printf("\r%-60s", fmt.Sprintf("%s %d%% (%s / %s)",
		ev.Message,
		ev.Percent,
		humanize.IBytes(uint64(ev.BytesWritten)),
		humanize.IBytes(uint64(ev.TotalBytes))))
}

func successMessage(res engine.Result, verified bool) string {
	if verified {
		return fmt.Sprintf("Write complete: %s written and verified (sha256 %s)",
			humanize.IBytes(uint64(res.BytesWritten)), res.Checksum)
	}
	return fmt.Sprintf("Write complete: %s written (sha256 %s)",
		humanize.IBytes(uint64(res.BytesWritten)), res.Checksum)
}

func reportResult(res engine.Result, verified bool) error {
	switch res.State {
	case engine.StateSucceeded:
		fmt.Println(successMessage(res, verified))
		return nil
	case engine.StateCancelled:
		if res.DeviceModified {
			fmt.Println("Cancelled. The device is PARTIALLY WRITTEN - do not trust its contents.")
		} else {
			fmt.Println("Cancelled before any data was written. The device is untouched.")
		}
		return nil
	default:
		if res.DeviceModified {
			fmt.Println("The device is PARTIALLY WRITTEN - do not trust its contents.")
		} else {
			fmt.Println("No data was written. The device is untouched.")
		}
		return res.Err
	}
}

func fetchCmd() *cobra.Command {
	var (
		refresh bool
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "fetch [asset-name]",
		Short: "List or download release disk images",
		Long:  "Without arguments, lists downloadable release images (newest first). With an asset name, downloads it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var assets []fetch.Asset
			var err error
			if refresh {
				assets, err = fetch.ListAssets(ctx, cfg.Fetch.Owner, cfg.Fetch.Repo)
			} else {
				assets, err = fetch.CachedAssets(ctx, cfg.Fetch.Owner, cfg.Fetch.Repo)
			}
			if err != nil {
				return err
			}
			if len(assets) == 0 {
				return fmt.Errorf("no release images found for %s/%s", cfg.Fetch.Owner, cfg.Fetch.Repo)
			}

			if len(args) == 0 {
				for _, a := range assets {
					fmt.Printf("%-12s %-10s %s\n", a.Version, humanize.IBytes(uint64(a.Size)), a.Name)
				}
				return nil
			}

			var chosen *fetch.Asset
			for i := range assets {
				if assets[i].Name == args[0] {
					chosen = &assets[i]
					break
				}
			}
			if chosen == nil {
				return fmt.Errorf("asset %s not found (run 'inferno fetch' to list)", args[0])
			}

			dir := outDir
			if dir == "" {
				dir = cfg.Download.Dir
			}
			if dir == "" {
				dir = fetch.DownloadDir()
			}

			path, err := fetch.Download(ctx, *chosen, dir, func(written, total int64) {
				if total > 0 {
					fmt.Printf("\rDownloading... %d%% (%s / %s)   ",
						written*100/total, humanize.IBytes(uint64(written)), humanize.IBytes(uint64(total)))
				} else {
					fmt.Printf("\rDownloading... %s   ", humanize.IBytes(uint64(written)))
				}
			})
			if err != nil {
				return err
			}
			fmt.Printf("\nDownloaded to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cached release list")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "download directory (default: config, then ~/Downloads)")
	return cmd
}
