package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WriteWAV writes the mix as a canonical 16-bit PCM WAV stream.
func WriteWAV(w io.Writer, mix *Mix) error {
	if mix == nil {
		return fmt.Errorf("nil mix")
	}

	dataLen := len(mix.PCM) * 2
	byteRate := mix.SampleRate * mix.Channels * 2
	blockAlign := mix.Channels * 2

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(mix.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(mix.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	buf := make([]byte, dataLen)
	for i, s := range mix.PCM {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WriteWAVFile writes the mix to path, creating or truncating it.
func WriteWAVFile(path string, mix *Mix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteWAV(f, mix); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
