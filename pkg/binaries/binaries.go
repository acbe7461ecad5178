package binaries

import "os"

func resolve(envKey, fallback string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return fallback
}

// UV returns the configured uv executable path.
func UV() string {
	return resolve("TALKDUB_UV_BIN", "uv")
}

// FFmpeg returns the configured ffmpeg executable path.
func FFmpeg() string {
	return resolve("TALKDUB_FFMPEG_BIN", "ffmpeg")
}

// FFprobe returns the configured ffprobe executable path.
func FFprobe() string {
	return resolve("TALKDUB_FFPROBE_BIN", "ffprobe")
}

// YtDLP returns the configured yt-dlp executable path.
func YtDLP() string {
	return resolve("TALKDUB_YTDLP_BIN", "yt-dlp")
}

// Demucs returns the configured source-separation tool path.
func Demucs() string {
	return resolve("TALKDUB_DEMUCS_BIN", "demucs")
}

// WhisperX returns the configured ASR+diarization tool path.
func WhisperX() string {
	return resolve("TALKDUB_WHISPERX_BIN", "whisperx")
}

// PiperTTS returns the configured neural TTS engine path.
func PiperTTS() string {
	return resolve("TALKDUB_PIPER_BIN", "piper")
}
