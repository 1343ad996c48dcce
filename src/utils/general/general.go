package general

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

func GetCurrentFilepath() string {
	_, filename, _, _ := runtime.Caller(1)
	return filepath.Dir(filename)
}

func GetCurrentDir() string {
	return filepath.Dir(GetCurrentFilepath())
}

func GenerateUUID5StringFromByteArray(p []byte) string {
	UUID5Namespace := "9db1c4b3-7a52-4c6e-8a1d-2f0b3c4d5e6f"

	namespaceUUID, err := uuid.Parse(UUID5Namespace)
	if err != nil {
		slog.Warn(fmt.Sprintf("Error parsing namespace UUID: %+v", err))
	}
	uuid5 := uuid.NewSHA1(namespaceUUID, p)
	return uuid5.String()
}
