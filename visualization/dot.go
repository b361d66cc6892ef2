package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/anggasct/phasesignal"
)

// Source is the part of a signal the generators read
type Source interface {
	Name() string
	CurrentState() phasesignal.Phase
}

// DOTGenerator generates Graphviz DOT format representations of a phase signal
type DOTGenerator struct {
	source  Source
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowCurrent   bool
	RankDirection string // "TB", "LR", "BT", "RL"
	NodeShape     string
	EdgeLabel     string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowCurrent:   true,
		RankDirection: "LR",
		NodeShape:     "circle",
		EdgeLabel:     EdgeLabel(phasesignal.DefaultMinPhase, phasesignal.DefaultMaxPhase),
	}
}

// EdgeLabel formats a phase duration range as an edge label
func EdgeLabel(lo, hi time.Duration) string {
	return fmt.Sprintf("after U[%s,%s)", lo, hi)
}

// NewDOTGenerator creates a new DOT generator for the given signal
func NewDOTGenerator(source Source, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		source:  source,
		options: opts,
	}
}

// Generate creates a DOT representation of the signal's two-phase cycle
func (g *DOTGenerator) Generate() (string, error) {
	if g.source == nil {
		return "", phasesignal.NewConfigurationError("DOTGenerator", "no signal to render")
	}

	var dot strings.Builder

	dot.WriteString("digraph PhaseSignal {\n")
	if g.options.RankDirection != "" {
		dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	}
	dot.WriteString(fmt.Sprintf("  label=%q;\n", g.source.Name()))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generatePhases(&dot)
	g.generateTransitions(&dot)

	dot.WriteString("}\n")

	return dot.String(), nil
}

func (g *DOTGenerator) generatePhases(dot *strings.Builder) {
	shape := g.options.NodeShape
	if shape == "" {
		shape = "circle"
	}
	current := g.source.CurrentState()

	dot.WriteString("  // Phases\n")

	for _, phase := range phasesignal.Phases() {
		label := phase.String()
		style := "filled"
		if phase == phasesignal.Red {
			label += "\\n(initial)"
		}
		if g.options.ShowCurrent && phase == current {
			style += ",bold"
			label += "\\n(current)"
		}

		dot.WriteString(fmt.Sprintf("  %q [shape=%s style=\"%s\" fillcolor=%s label=\"%s\"];\n",
			phase.String(), shape, style, fillColor(phase), label))
	}

	dot.WriteString("\n")
}

func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")

	for _, phase := range phasesignal.Phases() {
		if g.options.EdgeLabel != "" {
			dot.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", phase.String(), phase.Next().String(), g.options.EdgeLabel))
			continue
		}
		dot.WriteString(fmt.Sprintf("  %q -> %q;\n", phase.String(), phase.Next().String()))
	}
}

func fillColor(phase phasesignal.Phase) string {
	switch phase {
	case phasesignal.Red:
		return "lightcoral"
	case phasesignal.Green:
		return "lightgreen"
	default:
		return "lightgrey"
	}
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0o644) //nolint:gosec // DOT output is meant to be shared
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(source Source, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(source, options...),
	}
}

// Generate renders the DOT output through the Graphviz dot binary
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}
