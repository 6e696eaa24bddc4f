// Headless batch runner for the pixel classification pipeline.  Loads a raw
// volume and a saved project's labels, trains the classifier, and writes
// dense per-class probability maps through the cacheless prediction path.

package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/yutiansut/ilastik/classify"
	"github.com/yutiansut/ilastik/persist"
	"github.com/yutiansut/ilastik/pipeline"
	"github.com/yutiansut/ilastik/pixel"
)

var (
	showHelp   = flag.Bool("help", false, "")
	runVerbose = flag.Bool("verbose", false, "")
	configFile = flag.String("config", "", "")
)

const helpMessage = `
ilastik-headless runs batch pixel classification without a GUI.

Usage: ilastik-headless -config=<config.toml> <output path>

      -config     =string   Path to TOML configuration (required).
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

The output is the probability volume as little-endian float32 in the
image's axis order with the channel extent replaced by the class count.
`

// Config is the runner's TOML configuration.
type Config struct {
	Logging pixel.LogConfig `toml:"logging"`

	// Project is the path of the project container holding labels and
	// class metadata.
	Project string `toml:"project"`

	// Input points at raw little-endian float32 voxel data plus its tagged
	// shape.
	Input struct {
		Path    string  `toml:"path"`
		Axes    string  `toml:"axes"`
		Extents []int32 `toml:"extents"`
	} `toml:"input"`

	// Tile edges forwarded to the built-in classifier factory.
	TrainTileEdge   int32 `toml:"train_tile_edge"`
	PredictTileEdge int32 `toml:"predict_tile_edge"`
}

func main() {
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()
	if *showHelp || *configFile == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		pixel.SetLogMode(pixel.DebugMode)
	}

	var cfg Config
	if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read config %q: %v\n", *configFile, err)
		os.Exit(1)
	}
	cfg.Logging.SetLogger()

	if err := run(cfg, flag.Arg(0)); err != nil {
		pixel.Errorf("batch run failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config, outPath string) error {
	image, err := readVolume(cfg.Input.Path, cfg.Input.Axes, cfg.Input.Extents)
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Factory: classify.CentroidFactory{
			TrainTileEdge:   cfg.TrainTileEdge,
			PredictTileEdge: cfg.PredictTileEdge,
		},
	})
	if err != nil {
		return err
	}
	if _, err := p.AppendLane(image); err != nil {
		return err
	}

	if cfg.Project != "" {
		pf, err := persist.Open(cfg.Project)
		if err != nil {
			return err
		}
		defer pf.Close()
		if err := pf.LoadProject(p); err != nil {
			return err
		}
	}

	// Batch runs want fresh results, not the interactive freeze default.
	p.SetFreezePredictions(false)

	spatial := image.SpatialShape()
	roi := pixel.ROI{
		Offset: make(pixel.PointNd, spatial.NumDims()),
		Size:   spatial.Point(),
	}
	tlog := pixel.NewTimeLog()
	probs, err := p.PredictionProbabilities(context.Background(), 0, roi)
	if err != nil {
		return err
	}
	tlog.Infof("predicted %d voxels x %d classes", roi.NumVoxels(), p.NumClasses())

	return writeVolume(outPath, probs)
}

func readVolume(path, axes string, extents []int32) (*pixel.Volume, error) {
	shape, err := pixel.NewTaggedShape(axes, extents)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vol := pixel.NewVolume(shape)
	if err := binary.Read(f, binary.LittleEndian, vol.Data); err != nil {
		return nil, fmt.Errorf("reading %d voxels from %q: %v", shape.Prod(), path, err)
	}
	return vol, nil
}

func writeVolume(path string, vol *pixel.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, vol.Data); err != nil {
		return err
	}
	pixel.Infof("wrote probability volume %s to %q\n", vol.Shape, path)
	return nil
}
