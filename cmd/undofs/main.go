package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"undofs/internal/config"
	"undofs/internal/engine"
	"undofs/internal/fs"
	"undofs/internal/journal"
	"undofs/internal/logging"
	"undofs/internal/session"
	"undofs/internal/store"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var (
	logger = logging.GetLogger()

	verbose    bool
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "undofs [mountpoint]",
	Short: "In-memory filesystem with undo and redo",
	Long: `undofs mounts an in-memory, single-level filesystem and opens a shell
over it. Every command you run is journaled; "undo" reverts the last
command's changes and "redo" reapplies them.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")
	rootCmd.SetUsageTemplate(rootCmd.UsageTemplate() + "\nEnvironment:\n" + config.Usage() + "\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile, configPath)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.MountPoint = args[0]
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = logging.LevelDebug
	}
	logger.SetLevel(level)

	mountPoint, err := filepath.Abs(cfg.MountPoint)
	if err != nil {
		return fmt.Errorf("resolving mount point: %w", err)
	}

	logger.Info("Starting undofs...")
	logger.Debug("Mount point: %s", mountPoint)

	lock, err := lockMountPoint(mountPoint)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	uid, gid := cfg.Owner()
	logger.Debug("UID: %d, GID: %d", uid, gid)
	eng := engine.New(store.New(store.WithOwner(uid, gid), store.WithMaxFileSize(cfg.MaxFileBytes)), journal.New())
	vfs := fs.New(eng)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := vfs.Mount(ctx, mountPoint, cfg.MountTimeout); err != nil {
		return err
	}
	logger.Info("Filesystem mounted and ready")

	sess := session.New(eng, session.NewShellRunner(cfg.Shell, mountPoint),
		session.WithPrompt(cfg.Prompt),
		session.WithInvalidator(vfs),
		session.WithUnmount(vfs.Unmount),
	)
	if err := sess.Run(ctx, cmd.InOrStdin()); err != nil {
		return err
	}

	logger.Info("Clean shutdown complete")
	return nil
}

// lockMountPoint takes an exclusive lock beside mountPoint so two sessions
// cannot serve the same directory.
func lockMountPoint(mountPoint string) (*flock.Flock, error) {
	path := filepath.Join(filepath.Dir(mountPoint), "."+filepath.Base(mountPoint)+".undofs.lock")
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another undofs session is already serving %s", mountPoint)
	}
	logger.Debug("Holding lock %s", path)
	return lock, nil
}
