package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/astei/mcstream"
	"github.com/astei/mcstream/mcsjson"
)

func main() {
	app := &cli.App{
		Name:  "mcstream",
		Usage: "packs, unpacks and inspects MCStream building files",
		Commands: []*cli.Command{
			{
				Name:  "pack",
				Usage: "pack a JSON building document into an MCS file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "input JSON document"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output MCS file"},
					&cli.StringFlag{Name: "compression", Aliases: []string{"c"}, Value: "zstd", Usage: "none, zstd, lz4 or brotli"},
				},
				Action: runPack,
			},
			{
				Name:  "unpack",
				Usage: "unpack an MCS file into a JSON building document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "input MCS file"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output JSON document"},
				},
				Action: runUnpack,
			},
			{
				Name:  "info",
				Usage: "print header and chunk statistics for an MCS file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "MCS file to inspect"},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "per-chunk detail"},
				},
				Action: runInfo,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func runPack(c *cli.Context) error {
	compression, err := mcstream.ParseCompressionType(c.String("compression"))
	if err != nil {
		return err
	}

	input, err := os.Open(c.String("input"))
	if err != nil {
		return err
	}
	defer input.Close()

	encoder := mcstream.NewEncoder(compression)
	if err = mcsjson.Pack(input, encoder); err != nil {
		return err
	}
	if err = encoder.WriteToFile(c.String("output")); err != nil {
		return err
	}

	fmt.Printf("packed %d blocks into %d chunks: %s\n", encoder.Len(), encoder.Chunks(), c.String("output"))
	return nil
}

func runUnpack(c *cli.Context) error {
	decoder, err := mcstream.OpenFile(c.String("input"))
	if err != nil {
		return err
	}
	defer decoder.Close()

	output, err := os.Create(c.String("output"))
	if err != nil {
		return err
	}

	if err = mcsjson.Unpack(decoder, output); err != nil {
		_ = output.Close()
		return err
	}
	if err = output.Close(); err != nil {
		return err
	}

	fmt.Printf("unpacked %d chunks: %s\n", len(decoder.Chunks()), c.String("output"))
	return nil
}

func runInfo(c *cli.Context) error {
	decoder, err := mcstream.OpenFile(c.String("file"))
	if err != nil {
		return err
	}
	defer decoder.Close()

	header := decoder.Header()
	totalBlocks, err := decoder.TotalBlocks()
	if err != nil {
		return err
	}

	fmt.Printf("file:        %s\n", c.String("file"))
	fmt.Printf("version:     %d.%d\n", header.VersionMajor(), header.VersionMinor())
	fmt.Printf("compression: %s\n", header.Compression)
	fmt.Printf("signed:      %t\n", header.Signed())
	fmt.Printf("chunks:      %d\n", header.ChunkCount)
	fmt.Printf("blocks:      %d\n", totalBlocks)

	if !c.Bool("verbose") {
		return nil
	}

	for _, entry := range decoder.Index() {
		chunk, err := decoder.Chunk(entry.Chunk.X, entry.Chunk.Z)
		if err != nil {
			return err
		}
		fmt.Printf("chunk %s: %d blocks, palette %d, %d bytes compressed, %d uncompressed",
			entry.Chunk, len(chunk.Records), len(chunk.Palette), entry.Length, chunk.Size)
		if unused := chunk.UnreferencedPaletteEntries(); len(unused) > 0 {
			fmt.Printf(", %d unused palette entries", len(unused))
		}
		fmt.Println()
	}
	return nil
}
