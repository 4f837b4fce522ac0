package main

import (
	"context"
	"database/sql"

	"github.com/BrandonDHaskell/llllogs/internal/config"
	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store/sqlite"
)

// dataset is an open database with its stores and schema manager.
type dataset struct {
	db     *sql.DB
	writer *dbpkg.Worker
	store  *sqlite.Store
	schema *service.SchemaManager
}

func (a *app) openDataset(ctx context.Context) (*dataset, error) {
	layout, err := config.LoadLayout(a.cfg.LayoutPath)
	if err != nil {
		return nil, err
	}

	db, err := dbpkg.Open(ctx, dbpkg.Config{Path: a.cfg.DBPath})
	if err != nil {
		return nil, err
	}
	writer := dbpkg.NewWorker(db)

	st, err := sqlite.New(db, writer, layout)
	if err != nil {
		writer.Close()
		_ = db.Close()
		return nil, err
	}

	a.logger.WithField("db", a.cfg.DBPath).Debug("dataset opened")
	return &dataset{
		db:     db,
		writer: writer,
		store:  st,
		schema: service.NewSchemaManager(st, layout, a.logger),
	}, nil
}

func (d *dataset) Close() error {
	d.writer.Close()
	return d.db.Close()
}
