package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	pipeline "github.com/okieraised/go-face3d-pipeline"
	"github.com/okieraised/go-face3d-pipeline/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

type Config struct {
	Input       string
	OutputDir   string
	TritonURL   string
	LM3DPath    string
	ModelInput  bool
	JPEGQuality int
	Debug       bool
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	config := parseFlags()
	if config.Input == "" {
		fmt.Fprintln(os.Stderr, "Error: --input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	logger, err := utils.NewLogger(config.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(config, logger); err != nil {
		logger.Error("face3dcrop failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.Input, "input", "", "Input image (required)")
	flag.StringVar(&config.Input, "i", "", "Input image (shorthand)")
	flag.StringVar(&config.OutputDir, "out", ".", "Output directory")
	flag.StringVar(&config.TritonURL, "triton", os.Getenv("TRITON_URL"), "Triton gRPC address (env TRITON_URL)")
	flag.StringVar(&config.LM3DPath, "lm3d", os.Getenv("LM3D_PATH"), "Reference landmark YAML (env LM3D_PATH)")
	flag.BoolVar(&config.ModelInput, "model-input", false, "Also write the reconstruction model input")
	flag.IntVar(&config.JPEGQuality, "quality", 95, "JPEG quality")
	flag.BoolVar(&config.Debug, "debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "face3dcrop - align and crop a face for 3D reconstruction\n\n")
		fmt.Fprintf(os.Stderr, "Usage: face3dcrop [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  face3dcrop --input face.jpg --triton 127.0.0.1:8001\n")
		fmt.Fprintf(os.Stderr, "  face3dcrop --input face.jpg --model-input --out ./crops\n")
	}

	flag.Parse()
	return config
}

func run(config Config, logger *zap.Logger) error {
	if config.TritonURL == "" {
		return fmt.Errorf("triton address is required (--triton or TRITON_URL)")
	}

	triton, err := gotritonclient.NewTritonGRPCClient(
		config.TritonURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
	)
	if err != nil {
		return fmt.Errorf("connect to triton: %w", err)
	}

	p, err := pipeline.NewFace3DPipelineFromTriton(triton, config.LM3DPath, logger)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	img, err := utils.ReadImageFile(config.Input)
	if err != nil {
		return fmt.Errorf("read %s: %w", config.Input, err)
	}
	defer img.Close()

	keypoints, err := p.DetectKeypoints([]gocv.Mat{*img})
	if err != nil {
		return err
	}
	logger.Debug("face detected", zap.Float64s("keypoints", keypoints[0]))

	if err = os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return err
	}
	stem := strings.TrimSuffix(filepath.Base(config.Input), filepath.Ext(config.Input))

	cropped, err := p.FinalCrop(*img, keypoints[0])
	if err != nil {
		return err
	}
	defer cropped.Close()

	cropPath := filepath.Join(config.OutputDir, stem+"_crop.jpg")
	if err = utils.OpenCVImageToJPEG(cropPath, config.JPEGQuality, cropped); err != nil {
		return err
	}
	logger.Info("wrote final crop", zap.String("path", cropPath))

	if !config.ModelInput {
		return nil
	}

	input, err := p.ModelInput(*img, keypoints[0])
	if err != nil {
		return err
	}
	defer input.Close()

	inputPath := filepath.Join(config.OutputDir, stem+"_input.jpg")
	if err = utils.OpenCVImageToJPEG(inputPath, config.JPEGQuality, input.Image); err != nil {
		return err
	}
	logger.Info("wrote model input",
		zap.String("path", inputPath),
		zap.Float64s("trans_params", input.Params.Slice()),
	)
	return nil
}
