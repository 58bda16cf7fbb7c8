package player

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	logx "cobrell/pkg/logx"
)

// SetupAudioOutput routes audio to the 3.5mm jack on a Raspberry Pi and sets
// a sane volume. Best-effort: on non-Linux hosts or without amixer it is a
// logged no-op, never an error.
func SetupAudioOutput(ctx context.Context, log logx.Logger) {
	if runtime.GOOS != "linux" {
		log.Info("using default audio output", logx.String("platform", runtime.GOOS))
		return
	}
	if _, err := exec.LookPath("amixer"); err != nil {
		log.Debug("amixer not installed; leaving audio routing alone")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// numid=3: 0=auto, 1=3.5mm jack, 2=HDMI
	if err := exec.CommandContext(ctx, "amixer", "cset", "numid=3", "1").Run(); err != nil {
		log.Debug("amixer could not select 3.5mm jack", logx.Err(err))
	} else {
		log.Info("audio output routed to 3.5mm jack")
	}

	if err := exec.CommandContext(ctx, "amixer", "sset", "PCM", "90%").Run(); err == nil {
		log.Info("volume set to 90%")
	}
}
