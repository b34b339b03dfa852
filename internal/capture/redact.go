package capture

import "regexp"

var userinfoRe = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.-]*://[^:/@\s]*):[^@\s/]*@`)

// RedactCredentials masks the password of every URL in s, the way
// url.URL.Redacted does. ffmpeg echoes its input URL in error lines.
func RedactCredentials(s string) string {
	return userinfoRe.ReplaceAllString(s, "${1}:xxxxx@")
}
