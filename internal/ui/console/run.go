// Package console is the interactive terminal status view shown with --tui.
package console

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/runctx"
	"boxim-bot/internal/runtime"
)

const (
	logChannelBufferSize = 512
	stopTimeout          = 10 * time.Second
)

// Run shows the console until the user quits or ctx ends, then stops the
// bot. The returned error is the bot's last exit error, if any.
func Run(ctx context.Context, buildVersion string, opts config.Options, logger *logging.Logger) error {
	if logger == nil {
		panic("console.Run: logger must not be nil")
	}
	logger.SetTerminalOutputEnabled(false)
	defer logger.SetTerminalOutputEnabled(true)

	controller := runtime.NewController(ctx)
	m := newModel(buildVersion, opts, logger, controller)
	program := tea.NewProgram(m, tea.WithAltScreen())
	m.send = program.Send

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	logCh := make(chan string, logChannelBufferSize)
	for _, event := range logger.Recent(logChannelBufferSize / 2) {
		runctx.Offer(logCh, logging.FormatEventANSI(event))
	}
	unsubscribe := logger.Subscribe(func(event logging.Event) {
		runctx.Offer(logCh, logging.FormatEventANSI(event))
	})
	defer unsubscribe()

	go func() {
		for {
			line, ok := runctx.RecvOrDone(pumpCtx, "console log pump", logger, logCh)
			if !ok {
				return
			}
			program.Send(logMsg(line))
		}
	}()
	go func() {
		<-pumpCtx.Done()
		program.Quit()
	}()

	_, runErr := program.Run()
	stopPump()
	if !controller.StopAndWait(stopTimeout) {
		logger.Warn("bot did not stop in time", logging.Field("timeout", stopTimeout.String()))
	}
	if runErr != nil {
		return runErr
	}
	return m.lastErr
}
