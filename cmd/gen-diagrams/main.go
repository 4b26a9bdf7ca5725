// gen-diagrams renders the example workflows as diagrams for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/diagram"
	"github.com/rendis/flowcheck/internal/validation"
)

func main() {
	ctx := context.Background()

	cat, err := catalog.Builtin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog error: %v\n", err)
		os.Exit(1)
	}
	v, err := validation.New(cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validator error: %v\n", err)
		os.Exit(1)
	}

	files, _ := filepath.Glob(filepath.Join("examples", "workflows", "*.json"))
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no workflows under examples/workflows")
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	for _, file := range files {
		if err := render(ctx, v, file, outDir); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			os.Exit(1)
		}
	}
}

func render(ctx context.Context, v *validation.Validator, file, outDir string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	wf, err := validation.DecodeWorkflow(data)
	if err != nil {
		return err
	}
	res := v.ValidateWorkflow(ctx, wf, validation.DefaultOptions())
	model := diagram.Build(wf, res)
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	ascii := diagram.RenderASCII(model)
	if err := os.WriteFile(filepath.Join(outDir, base+"-ascii.txt"), []byte(ascii), 0o644); err != nil {
		return err
	}
	fmt.Printf("=== %s (ASCII) ===\n%s\n", base, ascii)

	mermaid := diagram.RenderMermaid(model)
	if err := os.WriteFile(filepath.Join(outDir, base+"-mermaid.md"), []byte("```mermaid\n"+mermaid+"```\n"), 0o644); err != nil {
		return err
	}

	png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
	if imgErr != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
		return nil
	}
	pngPath := filepath.Join(outDir, base+".png")
	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		return err
	}
	fmt.Printf("Written: %s (%d bytes, %d errors, %d warnings)\n", pngPath, len(png), len(res.Errors), len(res.Warnings))
	return nil
}
