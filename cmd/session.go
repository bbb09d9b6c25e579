package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/deploymenttheory/go-zdb/internal/device"
	"github.com/deploymenttheory/go-zdb/internal/services"
)

// openSession opens a pool image and wires the service layer over it.
// Flags override config file values. The returned cleanup closes the
// device.
func openSession(ctx context.Context, imagePath string) (*services.Session, func(), error) {
	config, err := device.LoadPoolConfig()
	if err != nil {
		return nil, nil, err
	}
	if imagePath == "" {
		imagePath = imageFlag
	}
	if imagePath == "" {
		imagePath = config.Image
	}
	if imagePath == "" {
		return nil, nil, fmt.Errorf("no pool image given: pass a path, use --image, or set image in zdb-browse.yaml")
	}

	idx := config.LabelIndex
	if rootCmd.PersistentFlags().Changed("label") {
		idx = labelIndex
	}
	verify := config.VerifyChecksums || verifyChecksums

	dev, err := device.OpenFile(imagePath)
	if err != nil {
		return nil, nil, err
	}

	pool, err := services.OpenPool(ctx, dev, services.PoolOptions{
		LabelIndex:      idx,
		VerifyChecksums: verify,
		Logger:          slog.Default(),
	})
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	session := services.NewSession(imagePath, pool, dev)
	session.Objects = services.NewObjectService(pool, dev, verify, slog.Default())
	session.Zaps = services.NewZapService(session.Objects)
	session.Spacemaps = services.NewSpacemapService(session.Objects)
	session.Datasets = services.NewDatasetService(session.Objects, session.Zaps, slog.Default())
	session.Graph = services.NewGraphService(session.Objects, session.Zaps)
	session.Blocks = services.NewBlockService(dev)

	cleanup := func() { dev.Close() }
	return session, cleanup, nil
}

// emitJSON prints v as indented JSON when the output format asks for
// it and reports whether it did.
func emitJSON(v any) bool {
	if outputFormat != "json" {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return true
}
