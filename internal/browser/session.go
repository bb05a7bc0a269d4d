package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"blissful-agent/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Session owns the connection to Chrome and the single library tab the
// agent augments. Unlike a scraping setup there is no pool of pages: the
// agent binds to the one tab a human is (or will be) looking at.
type Session struct {
	cfg     config.BrowserConfig
	library config.LibraryConfig

	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	launched   bool
}

func NewSession(cfg config.BrowserConfig, library config.LibraryConfig) *Session {
	return &Session{cfg: cfg, library: library}
}

// Start connects to an existing Chrome or launches a new one using Rod's
// launcher.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = s.browser.Close()
		s.browser = nil
		s.controlURL = ""
	}

	controlURL := s.cfg.DebuggerURL
	launched := false
	if controlURL == "" && len(s.cfg.Launch) > 0 {
		bin := s.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(s.cfg.IsHeadless())
		for _, rawFlag := range s.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(s.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				url = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		}
		controlURL = url
		launched = true
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	s.browser = browser
	s.controlURL = controlURL
	s.launched = launched
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (s *Session) ControlURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browser != nil
}

// AttachLibrary binds to the tab showing the library UI. An existing tab
// whose URL is under the configured base wins; otherwise a new tab is
// opened when open_tab allows it.
func (s *Session) AttachLibrary(ctx context.Context) (*LibraryPage, error) {
	s.mu.RLock()
	browser := s.browser
	s.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	base := s.library.NormalizedURL()

	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, base) {
			log.Printf("Attached to existing library tab at %s", info.URL)
			return newLibraryPage(p, s.cfg), nil
		}
	}

	if !s.library.ShouldOpenTab() {
		return nil, fmt.Errorf("no open tab matches %s and open_tab is disabled", base)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: base})
	if err != nil {
		return nil, fmt.Errorf("open library tab: %w", err)
	}
	if err := page.Timeout(s.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		log.Printf("warning: library tab load wait: %v", err)
	}
	log.Printf("Opened library tab at %s", base)
	return newLibraryPage(page, s.cfg), nil
}

// Shutdown disconnects from Chrome. A browser the session launched itself
// is closed; one it attached to is left running for its user.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.browser != nil {
		if s.launched {
			err = s.browser.Close()
		}
		s.browser = nil
	}
	s.controlURL = ""
	log.Printf("Browser shutdown complete")
	return err
}
