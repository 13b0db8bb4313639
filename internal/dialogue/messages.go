package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/weather"
)

const (
	msgGreeting        = "Hello! I am your restaurant assistant. What is your name?"
	msgRepeat          = "Could you repeat that for me?"
	msgRestart         = "Restarting the flow. What is your name?"
	msgGuestsRetry     = "I did not catch the guest count. How many people are in your party?"
	msgAskDate         = "Perfect. Which date should I book for you?"
	msgDateRetry       = "Please share a future date, like December 12th."
	msgAskTime         = "Thanks! What time would you like?"
	msgTimeRetry       = "Could you provide a specific time, such as 7:30 PM?"
	msgAskCuisine      = "Got it. Any cuisine preference for this reservation?"
	msgAskSpecial      = "Noted. Do you have any special requests or dietary needs? You can say none."
	msgNeedDate        = "I still need the booking date before fetching the weather."
	msgWeatherFailed   = "I could not retrieve the weather. Would you still like me to confirm the booking?"
	msgWeatherNoConfig = "I'm sorry, the weather service is not configured, so I can't check conditions. Would you still like me to confirm the booking?"
	msgChanges         = "No problem. Let me know what you would like to change."
	msgConfirmAgain    = "Just to confirm, should I lock in this reservation?"
	msgNeedDateWeather = "I need the date and weather before I can save the booking."
	msgSaveFailed      = "Hmm, I could not save the booking. Can we try again?"
	msgAlreadyBooked   = "Your reservation is already confirmed. Say restart if you need another booking."
	msgFallback        = "Let me know how else I can help."
)

// Greeting is the agent's opening line.
func Greeting() string { return msgGreeting }

func greetName(name string) string {
	return fmt.Sprintf("Great to meet you, %s! How many guests are joining?", name)
}

func weatherReply(d Draft, w weather.Insight, seating weather.Seating) string {
	looks := w.Summary
	if looks == "" {
		looks = string(w.Category)
	}
	temp := "comfortable"
	if w.TemperatureC != nil {
		temp = strconv.FormatFloat(*w.TemperatureC, 'f', -1, 64)
	}
	city := w.City
	if city == "" {
		city = d.City
	}

	var seatingLine string
	if seating == weather.Either {
		seatingLine = "Conditions are flexible, so we can seat you indoors or outdoors."
	} else {
		seatingLine = fmt.Sprintf("I recommend our %s area for the best experience.", seating)
	}

	return fmt.Sprintf("Weather for %s in %s looks %s with temperatures around %s°C. %s Shall I confirm all of these details?",
		booking.SpokenDate(d.Date), city, looks, temp, seatingLine)
}

func savedReply(b booking.Booking, d Draft) string {
	return fmt.Sprintf("You're all set! Booking %s is confirmed for %s at %s. Enjoy your meal!",
		b.ID, booking.SpokenDate(d.Date), d.Time)
}

func validationReply(verr *booking.ValidationError) string {
	msgs := verr.Messages()
	for i, m := range msgs {
		msgs[i] = strings.TrimSuffix(m, ".")
	}
	return fmt.Sprintf("I could not save the booking: %s. Let me know what you would like to change.",
		strings.Join(msgs, "; "))
}
