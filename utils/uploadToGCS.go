package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// getGoogleClient uses Application Default Credentials unless GCS_CREDENTIALS_JSON is set.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func gcsBucket() (string, error) {
	bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucketName == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return bucketName, nil
}

// ContentTypeFor detects the MIME type of an export. Office files sniff as zip, so
// the object extension decides for them.
func ContentTypeFor(objectName string, data []byte) string {
	mimeType := http.DetectContentType(data)
	if mimeType == "application/zip" && strings.EqualFold(path.Ext(objectName), ".xlsx") {
		return xlsxContentType
	}
	if strings.HasPrefix(mimeType, "text/plain") && strings.EqualFold(path.Ext(objectName), ".json") {
		return "application/json"
	}
	return mimeType
}

// UploadBytesToGCS stores data under objectName in GCS_BUCKET and returns the gs:// URI.
func UploadBytesToGCS(ctx context.Context, objectName string, data []byte) (string, error) {
	bucketName, err := gcsBucket()
	if err != nil {
		return "", err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = ContentTypeFor(objectName, data)
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload %s to Google Cloud Storage: %v", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}
	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// ObjectExistsInGCS checks GCS_BUCKET for objectName without downloading it.
func ObjectExistsInGCS(ctx context.Context, objectName string) (bool, error) {
	bucketName, err := gcsBucket()
	if err != nil {
		return false, err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	_, err = client.Bucket(bucketName).Object(objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
