package archive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fixed paths inside a trace archive. Viewer code depends on these exact
// names, so they are wire contracts rather than conventions.
const (
	TestInfoPath   = "test.json"
	TraceDir       = "otlp-traces"
	TraceFileName  = "pw-reporter-trace.json"
	ScreenshotDir  = "screenshots"
	ScreenshotExt  = ".jpeg"
	ScreenshotMIME = "image/jpeg"
)

// TraceFilePath is the archive path of the aggregated trace envelope.
const TraceFilePath = TraceDir + "/" + TraceFileName

// screenshotNamePattern is the conformance check for screenshot filenames:
// {page}@{pageGuid}-{timestamp}.jpeg. The name is parsed by consumers to
// recover page identity and timestamp without a side index, which is why the
// page must not contain '@' and the guid must not contain '-'.
var screenshotNamePattern = regexp.MustCompile(`^[^@]+@[^-]+-\d+\.jpeg$`)

// ScreenshotFileName derives the archive filename for a captured frame.
func ScreenshotFileName(page, pageGUID string, timestampMs int64) string {
	return fmt.Sprintf("%s@%s-%d%s", page, pageGUID, timestampMs, ScreenshotExt)
}

// ValidScreenshotFileName reports whether name satisfies the wire contract.
func ValidScreenshotFileName(name string) bool {
	return screenshotNamePattern.MatchString(name)
}

// ParseScreenshotFileName recovers page, page guid, and timestamp from a
// screenshot filename. Returns an error for names that violate the contract.
func ParseScreenshotFileName(name string) (page, pageGUID string, timestampMs int64, err error) {
	if !ValidScreenshotFileName(name) {
		return "", "", 0, fmt.Errorf("screenshot name %q does not match {page}@{pageGuid}-{timestamp}.jpeg", name)
	}

	at := strings.Index(name, "@")
	page = name[:at]
	rest := name[at+1:]

	dash := strings.Index(rest, "-")
	pageGUID = rest[:dash]

	tsStr := strings.TrimSuffix(rest[dash+1:], ScreenshotExt)
	timestampMs, err = strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("screenshot name %q: bad timestamp: %w", name, err)
	}

	return page, pageGUID, timestampMs, nil
}
