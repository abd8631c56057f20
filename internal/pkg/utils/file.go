package utils

import (
	"path"
	"strings"
)

var mediaExt = map[string]bool{".wav": true, ".mp3": true, ".mp4": true, ".m4a": true, ".ogg": true,
	".webm": true, ".wma": true, ".mov": true, ".avi": true, ".mkv": true, ".wmv": true, ".flv": true}

// SupportMediaExt checks if media ext is supported
func SupportMediaExt(ext string) bool {
	return mediaExt[strings.ToLower(ext)]
}

// IsMediaFile checks blob name ext
func IsMediaFile(name string) bool {
	return SupportMediaExt(path.Ext(name))
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
