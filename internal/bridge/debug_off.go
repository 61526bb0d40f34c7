//go:build !whisper_debug

package bridge

const debugBuild = false
