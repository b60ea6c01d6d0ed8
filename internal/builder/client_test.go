package builder_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/builder/mocks"
	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/lifecycle"
)

func TestBuilderClientMockListReadyBundles(t *testing.T) {
	client := mocks.NewClient(t)
	want := []bundle.Bundle{{UUID: uuid.New()}}
	client.On("ListReadyBundles", mock.Anything).Return(want, nil)

	got, err := client.ListReadyBundles(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBuilderClientMockPublishEvents(t *testing.T) {
	client := mocks.NewClient(t)
	events := []lifecycle.BundleEvent{{Type: lifecycle.BundleIncludedByBuilder}}
	client.On("PublishEvents", mock.Anything, events).Return(nil)

	err := client.PublishEvents(context.Background(), events)
	require.NoError(t, err)
}
