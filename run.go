package trafficview

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// RunConfig configures the window opened by Run.
type RunConfig struct {
	Title  string
	Width  int
	Height int
	// Background fills the screen before the scene is drawn.
	Background Color
	// ShowFPS prints frame rate, agent count and simulation time.
	ShowFPS bool
	// Tick, when set, is called at the start of every update, before the
	// scene reads input. Feed pumps hook in here.
	Tick func(s *Scene)
}

type game struct {
	scene *Scene
	cfg   RunConfig
	bg    color.Color
}

func (g *game) Update() error {
	if g.cfg.Tick != nil {
		g.cfg.Tick(g.scene)
	}
	g.scene.Update()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(g.bg)
	g.scene.Draw(screen)
	if g.cfg.ShowFPS {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("FPS: %.1f\nTPS: %.1f\nagents: %d\nt: %.1f",
			ebiten.ActualFPS(), ebiten.ActualTPS(), g.scene.agents.Len(), g.scene.simTime))
	}
}

func (g *game) Layout(w, h int) (int, int) {
	g.scene.Resize(w, h)
	return w, h
}

// Run opens a window and drives the scene until it is closed.
func Run(s *Scene, cfg RunConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		st := s.config.Settings()
		cfg.Width, cfg.Height = st.WindowWidth, st.WindowHeight
	}
	if cfg.Background == (Color{}) {
		cfg.Background = Color{0.55, 0.7, 0.85, 1}
	}
	bg := cfg.Background
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(&game{
		scene: s,
		cfg:   cfg,
		bg:    color.NRGBA{R: to8(bg.R), G: to8(bg.G), B: to8(bg.B), A: to8(bg.A)},
	})
}
