package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePartsList = `category,name,mpn,qty,price_eur,supplier,url,specs
Microcontroller,Arduino Uno R3,A000066,1,22.95,Kiwi Electronics,https://www.kiwi-electronics.com/nl/arduino-uno-r3-134,ATmega328P 5V 16MHz
Sensors,Ultrasonic distance sensor,HC-SR04,2,3.75,SOS Solutions,https://www.sossolutions.nl/hc-sr04-ultrasonic-sensor,2-400cm, 5V, 15mA
Mechanical,Screws,M3,,€1,50,,,

too,short
`

func TestParsePartsList(t *testing.T) {
	items, err := ParsePartsListString(samplePartsList)
	require.NoError(t, err)
	require.Len(t, items, 3)

	uno := items[0]
	assert.Equal(t, "Microcontroller", uno.Category)
	assert.Equal(t, "A000066", uno.MPN)
	assert.Equal(t, 1, uno.Qty)
	assert.InDelta(t, 22.95, uno.PriceEUR, 1e-9)

	sensor := items[1]
	assert.Equal(t, 2, sensor.Qty)
	assert.Equal(t, "2-400cm,5V,15mA", sensor.Specs)
	assert.InDelta(t, 7.5, sensor.LineTotal(), 1e-9)

	screws := items[2]
	assert.Equal(t, 1, screws.Qty)
	assert.InDelta(t, 1.0, screws.PriceEUR, 1e-9)

	assert.InDelta(t, 22.95+7.5+1.0, PartsListTotal(items), 1e-9)
}

func TestPartsListItemToPart(t *testing.T) {
	p := PartsListItem{Category: "Sensors", Name: "Ultrasonic", MPN: "HC-SR04", Qty: 2, PriceEUR: 3.75, Supplier: "SOS", URL: "https://x", Specs: "5V"}.Part()
	assert.Equal(t, "HC-SR04", p.MPN)
	assert.Equal(t, 2, p.Quantity)
	require.Len(t, p.Sellers, 1)
	assert.Equal(t, "EUR", p.Sellers[0].Currency)
	require.Len(t, p.Specs, 1)
}

func TestPartLabel(t *testing.T) {
	assert.Equal(t, "Texas Instruments LM358", Part{MPN: "LM358", Manufacturer: "Texas Instruments"}.Label())
	assert.Equal(t, "LM358", Part{MPN: "LM358"}.Label())
	assert.Equal(t, "Jumper wires", Part{Name: "Jumper wires"}.Label())
}

func TestNextBuildName(t *testing.T) {
	assert.Equal(t, "Configuration 2", NextBuildName(1))
}
