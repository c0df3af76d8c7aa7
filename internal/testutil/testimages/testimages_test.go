package testimages

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/registry/image/imagetest"
)

func TestStoreKeepsContract(t *testing.T) {
	imagetest.Run(t, context.Background(), New())
}
