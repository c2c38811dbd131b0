package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sarassure/sarassure/internal/area"
	"github.com/sarassure/sarassure/internal/cli"
	"github.com/sarassure/sarassure/internal/datastore"
	"github.com/sarassure/sarassure/internal/resilient"
)

var (
	dxFlag, dyFlag float64
	handleFlag     string
	saveFlag       bool
	imageFlag      string
	pickFlag       bool

	rectFlag struct {
		x, y, width, height int
	}
	colorFlag   string
	shapeFlag   string
	visibleFlag bool
)

var areaCmd = &cobra.Command{
	Use:   "area",
	Short: "Place the target area of a step",
}

var areaShowCmd = &cobra.Command{
	Use:   "show <step-id>",
	Short: "Print a step's target area",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAreaShow,
}

var areaMoveCmd = &cobra.Command{
	Use:   "move <step-id>",
	Short: "Drag the target area by --dx/--dy pixels",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAreaMove,
}

var areaResizeCmd = &cobra.Command{
	Use:   "resize <step-id>",
	Short: "Drag one resize handle by --dx/--dy pixels",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAreaResize,
}

var areaSaveCmd = &cobra.Command{
	Use:   "save <step-id>",
	Short: "Set the target area explicitly",
	Long: `Sets the target area to the given rectangle, clamped to the screenshot,
and saves it. Omitted style flags keep the current values.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAreaSave,
}

var areaProbeCmd = &cobra.Command{
	Use:   "probe [image]",
	Short: "Print the natural size of a screenshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAreaProbe,
}

func init() {
	for _, c := range []*cobra.Command{areaMoveCmd, areaResizeCmd} {
		c.Flags().Float64Var(&dxFlag, "dx", 0, "Horizontal pointer movement in image pixels")
		c.Flags().Float64Var(&dyFlag, "dy", 0, "Vertical pointer movement in image pixels")
		c.Flags().BoolVar(&saveFlag, "save", false, "Save the result (default prints only)")
	}
	for _, c := range []*cobra.Command{areaShowCmd, areaMoveCmd, areaResizeCmd, areaSaveCmd} {
		c.Flags().StringVar(&imageFlag, "image", "", "Local copy of the screenshot (default downloads image_url)")
	}
	areaResizeCmd.Flags().StringVar(&handleFlag, "handle", string(area.HandleBottomRight), "Resize handle: top-left, top-right, bottom-left, bottom-right, top, bottom, left, right")

	areaSaveCmd.Flags().IntVar(&rectFlag.x, "x", 0, "Left edge")
	areaSaveCmd.Flags().IntVar(&rectFlag.y, "y", 0, "Top edge")
	areaSaveCmd.Flags().IntVar(&rectFlag.width, "width", 100, "Width")
	areaSaveCmd.Flags().IntVar(&rectFlag.height, "height", 100, "Height")
	areaSaveCmd.Flags().StringVar(&colorFlag, "color", "", "Fill colour, e.g. rgba(255, 0, 0, 0.3)")
	areaSaveCmd.Flags().StringVar(&shapeFlag, "shape", "", "rectangle or ellipse")
	areaSaveCmd.Flags().BoolVar(&visibleFlag, "visible", true, "Show the area to learners")

	areaProbeCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the screenshot in a native file dialog")

	areaCmd.AddCommand(areaShowCmd, areaMoveCmd, areaResizeCmd, areaSaveCmd, areaProbeCmd)
}

func stepIDArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cli.PromptForValue("Step ID", "")
}

// openSession loads a step and its screenshot size and opens an editing
// session laid out at natural size.
func openSession(ctx context.Context, env *cli.Env, stepID string) (*area.Session, error) {
	if stepID == "" {
		return nil, errors.New("step ID is required")
	}
	step, err := resilient.Async(ctx, func(ctx context.Context) (*datastore.Step, error) {
		return env.Client.GetStep(ctx, stepID)
	}, nil, "")
	if err != nil {
		return nil, err
	}

	var dims area.ImageDimensions
	switch {
	case imageFlag != "":
		path, err := cli.ValidateImageFile(imageFlag)
		if err != nil {
			return nil, err
		}
		if dims, _, err = area.ProbeFile(path); err != nil {
			return nil, err
		}
	case step.ImageURL != "":
		if dims, err = cli.FetchImageDimensions(ctx, env.HTTP, step.ImageURL); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("step %s has no screenshot; pass --image", stepID)
	}

	box, dims := cli.NaturalLayout(dims)
	log.Debug().Str("stepId", stepID).Str("image", cli.FormatDims(dims)).Msg("Step loaded")
	return area.NewSession(stepID, step.TargetArea, box, dims), nil
}

func finish(ctx context.Context, env *cli.Env, s *area.Session, save bool) error {
	fmt.Println(cli.FormatArea(s.Area()))
	if !save {
		if s.Dirty() {
			fmt.Println("(not saved; pass --save to persist)")
		}
		s.Discard()
		return nil
	}
	if !s.Dirty() {
		fmt.Println("unchanged")
		return nil
	}
	if err := s.Save(ctx, env.Client); err != nil {
		return err
	}
	fmt.Println("saved")
	return nil
}

func runAreaShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env := cli.InitClient(ctx)
	s, err := openSession(ctx, env, stepIDArg(args))
	if err != nil {
		return err
	}
	fmt.Println(cli.FormatArea(s.Area()))
	return nil
}

func runAreaMove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env := cli.InitClient(ctx)
	s, err := openSession(ctx, env, stepIDArg(args))
	if err != nil {
		return err
	}
	cli.Drag(s, dxFlag, dyFlag)
	return finish(ctx, env, s, saveFlag)
}

func runAreaResize(cmd *cobra.Command, args []string) error {
	h, err := area.ParseHandle(handleFlag)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	env := cli.InitClient(ctx)
	s, err := openSession(ctx, env, stepIDArg(args))
	if err != nil {
		return err
	}
	cli.Resize(s, h, dxFlag, dyFlag)
	return finish(ctx, env, s, saveFlag)
}

func runAreaSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env := cli.InitClient(ctx)
	s, err := openSession(ctx, env, stepIDArg(args))
	if err != nil {
		return err
	}

	s.Editor().SetRect(area.Rect{X: rectFlag.x, Y: rectFlag.y, Width: rectFlag.width, Height: rectFlag.height})
	current := s.Area()
	color, shape := current.Color, current.Shape
	if colorFlag != "" {
		color = colorFlag
	}
	if shapeFlag != "" {
		if shape, err = area.ParseShape(shapeFlag); err != nil {
			return err
		}
	}
	if err := s.SetStyle(color, shape, visibleFlag); err != nil {
		return err
	}
	return finish(ctx, env, s, true)
}

func runAreaProbe(cmd *cobra.Command, args []string) error {
	var path string
	switch {
	case len(args) > 0:
		path = args[0]
	case pickFlag:
		picked, err := cli.PickImageFile()
		if errors.Is(err, cli.ErrCanceled) {
			return nil
		}
		if err != nil {
			return err
		}
		path = picked
	default:
		path = cli.PromptForValue("Screenshot path", "")
	}

	path, err := cli.ValidateImageFile(path)
	if err != nil {
		return err
	}
	dims, format, err := area.ProbeFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\n", path, format, cli.FormatDims(dims))
	return nil
}
