package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mesh-intelligence/riddler/internal/postgres"
	"github.com/mesh-intelligence/riddler/internal/sqlite"
	"github.com/mesh-intelligence/riddler/pkg/client"
	"github.com/mesh-intelligence/riddler/pkg/riddler"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// session is an open registry plus the function that releases it.
type session struct {
	reg   types.Registry
	close func() error
}

// attachCatalog attaches the local backend named by config.
func (a *app) attachCatalog() (types.Catalog, types.Config, error) {
	cfg, err := a.backendConfig()
	if err != nil {
		return nil, cfg, err
	}
	var catalog types.Catalog
	switch cfg.Backend {
	case types.BackendPostgres:
		catalog = postgres.NewBackend()
	default:
		catalog = sqlite.NewBackend(sqlite.WithLogger(a.logger))
	}
	if err := catalog.Attach(cfg); err != nil {
		return nil, cfg, fmt.Errorf("attach backend: %w", err)
	}
	a.logger.Debug("backend attached", "backend", cfg.Backend, "data_dir", cfg.DataDir)
	return catalog, cfg, nil
}

// open returns the remote registry when --url is set, else the local one.
func (a *app) open() (*session, error) {
	if a.flags.url != "" {
		opts := []client.Option{client.WithUserAgent("riddler-cli/" + riddler.Version)}
		if a.flags.token != "" {
			opts = append(opts, client.WithToken(a.flags.token))
		}
		c, err := client.New(a.flags.url, opts...)
		if err != nil {
			return nil, userError(err)
		}
		a.logger.Debug("using remote registry", "url", a.flags.url)
		return &session{reg: c, close: c.Close}, nil
	}

	catalog, _, err := a.attachCatalog()
	if err != nil {
		return nil, err
	}
	reg, err := catalog.Registry()
	if err != nil {
		catalog.Detach()
		return nil, err
	}
	return &session{reg: reg, close: catalog.Detach}, nil
}

// withRegistry opens a session, runs fn, and closes the session.
func (a *app) withRegistry(fn func(reg types.Registry) error) (err error) {
	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close registry: %w", cerr)
		}
	}()
	return fn(s.reg)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows with a header using go-pretty.
func printTable(w io.Writer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

// output prints v as JSON in --json mode, otherwise calls text.
func (a *app) output(w io.Writer, v any, text func()) error {
	if a.flags.jsonMode {
		return printJSON(w, v)
	}
	text()
	return nil
}

// parseMetadata parses key=value arguments.
func parseMetadata(args []string) (types.Metadata, error) {
	md := make(types.Metadata, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, userError(fmt.Errorf("invalid metadata %q (expected key=value)", arg))
		}
		md = append(md, types.Entry{Key: key, Value: value})
	}
	return md, nil
}

// formatMetadata renders metadata as "k=v, k=v" in stored order.
func formatMetadata(md types.Metadata) string {
	parts := make([]string, len(md))
	for i, e := range md {
		parts[i] = e.Key + "=" + e.Value
	}
	return strings.Join(parts, ", ")
}
