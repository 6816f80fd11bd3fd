// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCatalog/cmd/catalog/gcs"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/config"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
	catalogdb "github.com/AleutianAI/AleutianCatalog/services/catalog/storage/badger"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	backupOut   string
	backupToGCS bool

	restoreForce bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a full backup of the catalog database",
	Long: `Write a full backup of the catalog data directory.

Stop 'catalog serve' first: the database allows one process at a time.
The backup goes to --out, or with --gcs to the bucket configured under
backup.gcs_bucket as catalog-backups/catalog-<UTC time>.bak.

Examples:
  catalog backup --out catalog.bak
  catalog backup --gcs`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore SOURCE",
	Short: "Load a backup into an empty catalog database",
	Long: `Load a backup written by 'catalog backup'.

SOURCE is a local file or a gs://bucket/object URI. The data directory
must be empty unless --force is given, in which case backed up records
overwrite current ones and records not in the backup are kept.

Stop 'catalog serve' first.

Examples:
  catalog restore catalog.bak
  catalog restore gs://aleutian-backups/catalog-backups/catalog-20260309T220507Z.bak`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Backup file path")
	backupCmd.Flags().BoolVar(&backupToGCS, "gcs", false, "Upload to the configured GCS bucket")
	backupCmd.MarkFlagsMutuallyExclusive("out", "gcs")
	backupCmd.MarkFlagsOneRequired("out", "gcs")

	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "Restore into a non-empty database")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeDir, err := openDataDir(cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	ctx := cmd.Context()
	p := printer(cmd)

	if !backupToGCS {
		f, err := os.OpenFile(backupOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("create backup file: %w", err)
		}
		w := bufio.NewWriter(f)
		version, err := st.Backup(ctx, w)
		if err == nil {
			err = w.Flush()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		p.Success("Backed up %s to %s (version %d)", cfg.Store.Path, backupOut, version)
		return nil
	}

	client, err := newGCSClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	object := gcs.BackupObjectName(time.Now())
	pr, pw := io.Pipe()
	versions := make(chan uint64, 1)
	go func() {
		v, err := st.Backup(ctx, pw)
		versions <- v
		pw.CloseWithError(err)
	}()
	n, err := client.Upload(ctx, object, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	version := <-versions
	p.Success("Backed up %s to %s (%d bytes, version %d)", cfg.Store.Path, client.URI(object), n, version)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeDir, err := openDataDir(cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	ctx := cmd.Context()
	empty, err := st.Empty(ctx)
	if err != nil {
		return err
	}
	if !empty && !restoreForce {
		return fmt.Errorf("data directory %s is not empty; use --force to restore anyway", cfg.Store.Path)
	}

	source := args[0]
	var r io.Reader
	if strings.HasPrefix(source, "gs://") {
		bucket, object, err := gcs.ParseURI(source)
		if err != nil {
			return err
		}
		cfg.Backup.GCSBucket = bucket
		client, err := newGCSClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		pr, pw := io.Pipe()
		go func() {
			_, err := client.Download(ctx, object, pw)
			pw.CloseWithError(err)
		}()
		defer pr.Close()
		r = pr
	} else {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("open backup: %w", err)
		}
		defer f.Close()
		r = bufio.NewReader(f)
	}

	if err := st.Restore(ctx, r); err != nil {
		return fmt.Errorf("restore %s: %w", source, err)
	}
	printer(cmd).Success("Restored %s into %s", source, cfg.Store.Path)
	return nil
}

// openDataDir opens the configured persistent database without GC and a
// record store on top of it. The returned func closes both.
func openDataDir(cfg *config.CatalogConfig) (*store.BadgerStore, func(), error) {
	if cfg.Store.InMemory {
		return nil, nil, errors.New("store.in_memory is set; there is no data directory to back up or restore")
	}
	dbCfg := catalogdb.DefaultConfig()
	dbCfg.Path = cfg.Store.Path
	dbCfg.SyncWrites = true
	dbCfg.GCInterval = 0

	db, err := catalogdb.Open(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (is 'catalog serve' still running?)", err)
	}
	st, err := store.Open(db, store.Options{})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() {
		_ = st.Close()
		_ = db.Close()
	}, nil
}

func newGCSClient(ctx context.Context, cfg *config.CatalogConfig) (*gcs.Client, error) {
	if cfg.Backup.GCSBucket == "" {
		return nil, errors.New("backup.gcs_bucket is not configured")
	}
	return gcs.NewClient(ctx, cfg.Backup.GCSProject, cfg.Backup.GCSBucket, cfg.Backup.CredentialsFile)
}
