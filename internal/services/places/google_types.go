package places

// nearbySearchResponse represents the Google Places Nearby Search API response
type nearbySearchResponse struct {
	Results       []placeResult `json:"results"`
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// detailsResponse represents the Google Places Details API response
type detailsResponse struct {
	Result       *placeResult `json:"result,omitempty"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// placeResult is a raw place record. Which fields are present depends on the call that produced it.
type placeResult struct {
	PlaceID              string        `json:"place_id"`
	Name                 string        `json:"name"`
	BusinessStatus       string        `json:"business_status,omitempty"`
	FormattedAddress     string        `json:"formatted_address,omitempty"`
	Vicinity             string        `json:"vicinity,omitempty"`
	Geometry             *geometry     `json:"geometry,omitempty"`
	OpeningHours         *openingHours `json:"opening_hours,omitempty"`
	Photos               []photo       `json:"photos,omitempty"`
	PriceLevel           *int          `json:"price_level,omitempty"`
	Rating               *float64      `json:"rating,omitempty"`
	UserRatingsTotal     *int          `json:"user_ratings_total,omitempty"`
	Types                []string      `json:"types,omitempty"`
	FormattedPhoneNumber string        `json:"formatted_phone_number,omitempty"`
	Website              string        `json:"website,omitempty"`
	Reviews              []review      `json:"reviews,omitempty"`

	// Attribute flags only returned by the details call
	WheelchairAccessibleEntrance *bool `json:"wheelchair_accessible_entrance,omitempty"`
	ServesVegetarianFood         *bool `json:"serves_vegetarian_food,omitempty"`
	Takeout                      *bool `json:"takeout,omitempty"`
	Delivery                     *bool `json:"delivery,omitempty"`
	DineIn                       *bool `json:"dine_in,omitempty"`
	Reservable                   *bool `json:"reservable,omitempty"`
}

type geometry struct {
	Location *latLng `json:"location,omitempty"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type openingHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

type photo struct {
	Height         int    `json:"height"`
	Width          int    `json:"width"`
	PhotoReference string `json:"photo_reference"`
}

type review struct {
	AuthorName              string  `json:"author_name"`
	Rating                  float64 `json:"rating"`
	Text                    string  `json:"text"`
	Time                    int64   `json:"time"`
	RelativeTimeDescription string  `json:"relative_time_description,omitempty"`
}
