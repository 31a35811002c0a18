package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/icarus-lang/icarus/internal/codegen/llvm"
	"github.com/icarus-lang/icarus/internal/diag"
	"github.com/icarus-lang/icarus/internal/interp"
	"github.com/icarus-lang/icarus/internal/ir"
	"github.com/icarus-lang/icarus/internal/module"
	"github.com/icarus-lang/icarus/internal/parser"
	"github.com/icarus-lang/icarus/internal/sema"
	"github.com/icarus-lang/icarus/internal/types"
)

func debugLog(format string, a ...any) {
	if os.Getenv("ICARUS_DEBUG") != "" {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format, a...)
	}
}

// projectConfig is the optional icarus.yaml next to the source file.
type projectConfig struct {
	Module string `yaml:"module"`
	Output string `yaml:"output"`
}

func loadProjectConfig(sourcePath string) projectConfig {
	cfg := projectConfig{}
	dir := filepath.Dir(sourcePath)
	data, err := os.ReadFile(filepath.Join(dir, "icarus.yaml"))
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring malformed icarus.yaml: %v\n", err)
		return projectConfig{}
	}
	debugLog("loaded icarus.yaml: module=%q output=%q\n", cfg.Module, cfg.Output)
	return cfg
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: icarus <command> [arguments]\n")
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  compile --output <path> <source>   Compile a source file to a module\n")
		fmt.Fprintf(os.Stderr, "  version                            Show version information\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "compile":
		runCompile(flag.Args()[1:])
	case "version", "-v", "--version":
		runVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}

func runVersion() {
	version := "dev"
	if v := os.Getenv("ICARUS_VERSION"); v != "" {
		version = v
	}
	fmt.Printf("icarus version %s\n", version)
}

func runCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("output", "", "module output path")
	emitLLVM := fs.String("emit-llvm", "", "also write the LLVM lowering to this path")
	jsonDiags := fs.Bool("json", false, "emit diagnostics as JSON")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: icarus compile --output <path> <source>\n")
		os.Exit(1)
	}
	source := fs.Arg(0)

	cfg := loadProjectConfig(source)
	moduleName := cfg.Module
	if moduleName == "" {
		moduleName = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	outPath := *output
	if outPath == "" {
		outPath = cfg.Output
	}
	if outPath == "" {
		outPath = moduleName + ".icm"
	}

	var consumer diag.Consumer
	if *jsonDiags {
		consumer = diag.NewJSONConsumer(os.Stderr)
	} else {
		consumer = diag.NewConsoleConsumer(os.Stderr)
	}

	if err := compile(source, moduleName, outPath, *emitLLVM, consumer); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if consumer.ErrorCount() > 0 {
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", outPath)
}

func compile(source, moduleName, outPath, llvmPath string, consumer diag.Consumer) error {
	src, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("error reading file: %v", err)
	}

	debugLog("parsing %s\n", source)
	p := parser.New(string(src), parser.WithFilename(source))
	file := p.ParseFile()
	for _, d := range p.Errors() {
		consumer.Consume(d)
	}
	if consumer.ErrorCount() > 0 {
		return fmt.Errorf("parse failed")
	}

	debugLog("checking and emitting\n")
	sys := types.NewSystem()
	prog := ir.NewProgram()
	machine := interp.NewMachine(sys, prog)
	ctx := sema.NewContext(sys, prog, machine, consumer, moduleName)
	scope := ctx.CompileFile(file)
	if consumer.ErrorCount() > 0 {
		return fmt.Errorf("compilation failed")
	}

	mod := &module.Module{Name: moduleName}
	for _, decl := range file.Decls {
		b := scope.Lookup(decl.Name.Name)
		if b == nil || b.Qual.HasError() {
			continue
		}
		sym := module.Symbol{Name: decl.Name.Name, Type: b.Qual.Type}
		switch {
		case b.IsFn:
			sym.IsFn, sym.FnID = true, b.FnID
			sym.Value = []uint64{uint64(b.FnID)}
		case b.Constant != nil:
			sym.Value = b.Constant
		default:
			continue
		}
		mod.Symbols = append(mod.Symbols, sym)
	}

	debugLog("writing module to %s\n", outPath)
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating output: %v", err)
	}
	defer out.Close()
	if err := module.Write(out, sys, prog, mod); err != nil {
		return fmt.Errorf("error writing module: %v", err)
	}

	if llvmPath != "" {
		debugLog("lowering to LLVM\n")
		g := llvm.NewGenerator(sys, prog)
		for _, sym := range mod.Symbols {
			if sym.IsFn {
				g.Name(sym.FnID, sym.Name)
			}
		}
		text, err := g.Generate()
		if err != nil {
			for _, d := range g.Errors {
				consumer.Consume(d)
			}
			return fmt.Errorf("LLVM lowering failed: %v", err)
		}
		if err := os.WriteFile(llvmPath, []byte(text), 0o644); err != nil {
			return fmt.Errorf("error writing LLVM output: %v", err)
		}
	}
	return nil
}
