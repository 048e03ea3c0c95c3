package models

// Rating is one of the five ordinal words used by the catalog markup.
type Rating string

const (
	RatingOne   Rating = "One"
	RatingTwo   Rating = "Two"
	RatingThree Rating = "Three"
	RatingFour  Rating = "Four"
	RatingFive  Rating = "Five"
)

// Ratings lists the vocabulary from lowest to highest.
var Ratings = []Rating{RatingOne, RatingTwo, RatingThree, RatingFour, RatingFive}

// Valid reports whether r belongs to the vocabulary.
func (r Rating) Valid() bool {
	switch r {
	case RatingOne, RatingTwo, RatingThree, RatingFour, RatingFive:
		return true
	}
	return false
}

func (r Rating) String() string {
	return string(r)
}
