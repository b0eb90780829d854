package port

import "context"

// CropTarget names a semantic region of the bill the object detector can
// isolate.
type CropTarget string

const (
	CropCustomerData CropTarget = "customer_data"
	CropConsumption  CropTarget = "consumption"
)

// CropDetector abstracts the object-detection collaborator. DetectAndCrop
// returns the path of a cropped sub-image for the target class, or "" when
// no region scores above the confidence threshold.
type CropDetector interface {
	DetectAndCrop(ctx context.Context, imagePath string, target CropTarget) (string, error)
	Cleanup()
	Available() bool
}
