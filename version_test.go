package runnotify

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "runnotify/"+Version+" ("+info.Platform+")", info.UserAgent())
	assert.True(t, strings.HasPrefix(info.String(), "Version: "+Version))
	assert.Contains(t, info.String(), "Platform: "+info.Platform)
}
