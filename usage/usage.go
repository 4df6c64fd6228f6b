package usage

import "fmt"

// CardSide describes how business card photos map to contacts: one image per
// contact, or front/back pairs.
type CardSide string

// Defining the two supported sidedness values
const (
	SingleSided CardSide = "single"
	DoubleSided CardSide = "double"
)

// ComputeCost converts an image count into a contact-quota cost. Double-sided
// cards use two images per contact, rounded up so an unpaired image still
// costs a full contact.
func ComputeCost(imageCount int64, side CardSide) (int64, error) {
	if imageCount <= 0 {
		return 0, fmt.Errorf("image count must be a positive integer")
	}
	switch side {
	case SingleSided:
		return imageCount, nil
	case DoubleSided:
		return (imageCount + 1) / 2, nil
	default:
		return 0, fmt.Errorf("card type must be 'single' or 'double'")
	}
}
