// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/canonical/chimg/chimgapi"
	"github.com/canonical/chimg/internal/exe"
	"github.com/canonical/chimg/internal/logger"
	"github.com/canonical/chimg/internal/telemetry"
	"github.com/canonical/chimg/pkg/chimglib"
	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("chimg", "Customizes Ubuntu root filesystems and disk images")

	disableTelemetry = app.Flag("disable-telemetry", "Disable telemetry collection.").Bool()
	logFlags         = exe.SetupLogFlags(app)

	chrootfsCmd       = app.Command("chrootfs", "Modify the given root filesystem directory.")
	chrootfsConfig    = chrootfsCmd.Arg("config", "Path of the configuration file.").Required().ExistingFile()
	chrootfsRootfs    = chrootfsCmd.Arg("rootfs-path", "Path of the root filesystem directory to work with.").Required().ExistingDir()
	outputFilesName   = chrootfsCmd.Flag("output-files-name", "Base name (path without extension) for the generated .manifest and .filelist files. No files are generated if unset.").String()
	compressOutput    = chrootfsCmd.Flag("compress-output-files", "Gzip the generated output files.").Bool()
	chrootfsOverwrite = chrootfsCmd.Flag("overwrite", "Overwrite existing output files. Has no effect if --output-files-name is not given.").Bool()

	customizeCmd       = app.Command("customize-image", "Customize a disk image's root filesystem.")
	inputImageFile     = customizeCmd.Arg("input-image-file", "Path of the input image file.").Required().ExistingFile()
	outputImagePath    = customizeCmd.Arg("output-image-path", "Path to write the customized image to.").Required().String()
	targetMountPoint   = customizeCmd.Arg("target-mount-point", "Path to mount the image's root filesystem at.").Required().String()
	customizeConfig    = customizeCmd.Arg("config", "Path of the configuration file.").Required().ExistingFile()
	customizeOverwrite = customizeCmd.Flag("overwrite", "Overwrite an existing output image file.").Bool()

	schemaCmd    = app.Command("schema", "Generate the JSON schema of the configuration format.")
	schemaOutput = schemaCmd.Flag("output", "Path of the output JSON schema file. Defaults to stdout.").Short('o').String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger.InitBestEffort(logFlags)

	err := run(command)
	if err != nil {
		log.Fatalf("chimg failed:\n%v", err)
	}
}

func run(command string) error {
	if command == schemaCmd.FullCommand() {
		// No telemetry or config loading for pure schema generation.
		return generateSchema(*schemaOutput)
	}

	err := telemetry.InitTelemetry(*disableTelemetry, chimglib.ToolVersion)
	if err != nil {
		logger.Log.Warnf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownErr := telemetry.ShutdownTelemetry(context.Background())
		if shutdownErr != nil {
			logger.Log.Warnf("Failed to shut down telemetry: %v", shutdownErr)
		}
	}()

	ctx, span := otel.GetTracerProvider().Tracer(chimglib.OtelTracerName).Start(context.Background(), command)
	defer span.End()

	switch command {
	case chrootfsCmd.FullCommand():
		return chrootfs(ctx)
	case customizeCmd.FullCommand():
		return customizeImage(ctx)
	default:
		return fmt.Errorf("unknown command (%s)", command)
	}
}

func chrootfs(ctx context.Context) error {
	config, err := chimglib.LoadConfig(*chrootfsConfig)
	if err != nil {
		return err
	}

	chroot := chimglib.NewChroot(config, *chrootfsRootfs)
	err = chroot.Apply(ctx)
	if err != nil {
		return err
	}

	if *outputFilesName == "" {
		return nil
	}
	return chimglib.WriteOutputFiles(*chrootfsRootfs, chimglib.OutputFiles{
		BaseName:  *outputFilesName,
		Overwrite: *chrootfsOverwrite,
		Compress:  *compressOutput,
	})
}

func customizeImage(ctx context.Context) error {
	config, err := chimglib.LoadConfig(*customizeConfig)
	if err != nil {
		return err
	}

	return chimglib.CustomizeImage(ctx, config, *inputImageFile, *outputImagePath, *targetMountPoint,
		*customizeOverwrite)
}

func generateSchema(outputFile string) error {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}

	schema := reflector.Reflect(&chimgapi.Config{})
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(schemaJSON))
		return nil
	}
	err = os.WriteFile(outputFile, schemaJSON, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}
	return nil
}
