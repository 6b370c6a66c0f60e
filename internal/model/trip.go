package model

import "time"

// DateLayout is the calendar-day format trips store their dates in.
const DateLayout = "2006-01-02"

type Trip struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Location struct {
	ID        int64     `json:"id"`
	TripID    int64     `json:"trip_id"`
	Title     string    `json:"title"`
	Address   *string   `json:"address"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}
