package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/KrzysztofW02/ZTP/internal/storage"
)

func DecodeResultCursor(cursorStr string) (*storage.ResultCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var receivedAt, id int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &receivedAt); err != nil {
		return nil, fmt.Errorf("invalid receivedAt in cursor: %w", err)
	}
	if _, err := fmt.Sscanf(decodedParts[1], "%d", &id); err != nil {
		return nil, fmt.Errorf("invalid id in cursor: %w", err)
	}

	return &storage.ResultCursor{
		ReceivedAt: time.Unix(0, receivedAt).UTC(),
		ID:         id,
	}, nil
}

func EncodeResultCursor(cursor *storage.ResultCursor) string {
	cs := fmt.Sprintf("%d|%d", cursor.ReceivedAt.UnixNano(), cursor.ID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
