package browser

import (
	"runtime"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webgym/internal/config"
)

// AllocatorOptions assembles the launch flags for the Chrome process backing
// episode sessions. It starts from chromedp's defaults and layers on the
// configured window geometry, user agent, and binary path.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	// Containers on Linux commonly lack both the sandbox and a usable /dev/shm.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
