package flights

import (
	"strings"

	"github.com/Domenick1991/skybooking/internal/domain"
)

var defaultAirports = []domain.Airport{
	{Code: "JFK", Name: "John F. Kennedy International Airport", City: "New York", Country: "United States"},
	{Code: "LAX", Name: "Los Angeles International Airport", City: "Los Angeles", Country: "United States"},
	{Code: "ORD", Name: "O'Hare International Airport", City: "Chicago", Country: "United States"},
	{Code: "SFO", Name: "San Francisco International Airport", City: "San Francisco", Country: "United States"},
	{Code: "MIA", Name: "Miami International Airport", City: "Miami", Country: "United States"},
	{Code: "LHR", Name: "Heathrow Airport", City: "London", Country: "United Kingdom"},
	{Code: "CDG", Name: "Charles de Gaulle Airport", City: "Paris", Country: "France"},
	{Code: "FRA", Name: "Frankfurt Airport", City: "Frankfurt", Country: "Germany"},
	{Code: "AMS", Name: "Amsterdam Airport Schiphol", City: "Amsterdam", Country: "Netherlands"},
	{Code: "MAD", Name: "Adolfo Suárez Madrid-Barajas Airport", City: "Madrid", Country: "Spain"},
	{Code: "FCO", Name: "Leonardo da Vinci-Fiumicino Airport", City: "Rome", Country: "Italy"},
	{Code: "DXB", Name: "Dubai International Airport", City: "Dubai", Country: "United Arab Emirates"},
	{Code: "SIN", Name: "Singapore Changi Airport", City: "Singapore", Country: "Singapore"},
	{Code: "HND", Name: "Haneda Airport", City: "Tokyo", Country: "Japan"},
	{Code: "SYD", Name: "Sydney Kingsford Smith Airport", City: "Sydney", Country: "Australia"},
}

// matchDefaultAirports matches keyword against code, city and name.
func matchDefaultAirports(keyword string) []domain.Airport {
	k := strings.ToLower(keyword)
	out := make([]domain.Airport, 0)
	for _, a := range defaultAirports {
		if strings.EqualFold(a.Code, keyword) ||
			strings.Contains(strings.ToLower(a.City), k) ||
			strings.Contains(strings.ToLower(a.Name), k) {
			out = append(out, a)
		}
	}
	return out
}
