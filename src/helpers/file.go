package helpers

import (
	"os"

	"go.uber.org/zap"
)

// FileExists reports whether filename exists and is not a directory,
// logging at Debug if verbose is requested. Used by the demo CLI to
// tell a fresh index apart from one being reopened.
func FileExists(filename string, verbose bool, logger *zap.SugaredLogger) bool {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if verbose {
				logger.Debugf("file does not exist: %s", filename)
			}
			return false
		}
		logger.Debugf("error checking file %s for existence: %s", filename, err)
		return false
	}
	return !info.IsDir()
}
