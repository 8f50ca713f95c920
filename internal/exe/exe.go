// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

// Package exe defines QoL functions to simplify and unify creating executables
package exe

import (
	"github.com/canonical/chimg/internal/logger"
	"gopkg.in/alecthomas/kingpin.v2"
)

func SetupLogFlags(k *kingpin.Application) *logger.LogFlags {
	lf := &logger.LogFlags{}
	lf.LogColor = k.Flag(logger.ColorFlag, logger.ColorFlagHelp).PlaceHolder(logger.ColorsPlaceholder).Enum(logger.Colors()...)
	lf.LogFile = k.Flag(logger.FileFlag, logger.FileFlagHelp).String()
	lf.LogLevel = k.Flag(logger.LevelsFlag, logger.LevelsHelp).PlaceHolder(logger.LevelsPlaceholder).Enum(logger.Levels()...)
	return lf
}
