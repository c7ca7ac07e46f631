//go:build rknn

package main

import (
	"github.com/swdee/go-alpr/classifier/rknn"
	"github.com/swdee/go-alpr/config"
	"go.uber.org/zap"
)

// the rknn backend links against librknnrt and is only built on Rockchip
// boards with -tags rknn
func init() {
	platformSetup = pinFastCores
}

// pinFastCores keeps pre and post processing on the big cores
func pinFastCores(cfg config.Config, log *zap.SugaredLogger) {

	if cfg.Platform == "" {
		return
	}

	err := rknn.PinCPU(cfg.Platform, rknn.FastCores)

	if err != nil {
		log.Warnw("failed to set CPU affinity", "platform", cfg.Platform, "error", err)
		return
	}

	log.Infow("pinned to fast cores", "platform", cfg.Platform)
}
