package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/aristath/backtester/internal/reliability"
)

type backupCmd struct {
	out    string
	list   bool
	rotate bool
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "snapshot the databases to object storage or a local archive" }
func (*backupCmd) Usage() string {
	return `backtest backup [-out <file.tar.gz>] [-list] [-rotate]

  Without flags, uploads a tar.gz snapshot of every database to the
  configured S3 bucket. -out writes the archive locally instead.
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "out", "", "write the archive to this file instead of uploading")
	f.BoolVar(&c.list, "list", false, "list stored backups")
	f.BoolVar(&c.rotate, "rotate", false, "delete stored backups older than BACKUP_RETENTION_DAYS after uploading")
}

func (c *backupCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg, container, _, err := openContainer(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	backups := container.BackupService

	switch {
	case c.list:
		infos, err := backups.ListBackups(ctx)
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		if err := printJSON(stdout, infos); err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess

	case c.out != "":
		metadata, err := backups.CreateArchive(ctx, c.out)
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(stdout, "Wrote %s (%d databases)\n", c.out, len(metadata.Databases))
		return subcommands.ExitSuccess
	}

	result, err := backups.CreateAndUploadBackup(ctx)
	if err != nil {
		if errors.Is(err, reliability.ErrNoObjectStore) {
			fmt.Fprintln(stderr, "Set S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY, or use -out.")
		}
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Uploaded %s (%d bytes)\n", result.Key, result.SizeBytes)

	if c.rotate {
		deleted, err := backups.RotateOldBackups(ctx, cfg.BackupRetentionDays)
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(stdout, "Rotated %d old backups\n", deleted)
	}
	return subcommands.ExitSuccess
}
