package taxfolio

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

/*
	{
	    "dataSets": [
	        {
	            "series": {
	                "0:0:0:0:0": {
	                    "observations": {
	                        "0": [1.1279, 0, 0, null, null],
	                        "1": [1.1301, 0, 0, null, null]
	                    }
	                }
	            }
	        }
	    ],
	    "structure": {
	        "dimensions": {
	            "series": [
	                {"id": "FREQ", "values": [{"id": "D"}]},
	                {"id": "CURRENCY", "values": [{"id": "USD"}, {"id": "GBP"}]},
	                ...
	            ],
	            "observation": [
	                {"id": "TIME_PERIOD", "values": [{"id": "2022-01-03"}, ...]}
	            ]
	        }
	    }
	}
*/

// ParseFxRatesSDMX reads daily rates from an ECB data portal response in
// SDMX-JSON format (EXR dataflow, e.g. D.USD.EUR.SP00.A). Each series key is
// a colon-separated tuple of dimension indices; index 1 selects the currency.
func ParseFxRatesSDMX(baseCurrency string, rd io.Reader) (*FxRates, error) {
	var jobj any
	if err := json.NewDecoder(rd).Decode(&jobj); err != nil {
		return nil, fmt.Errorf("invalid SDMX JSON: %w", err)
	}
	rates := NewFxRates(baseCurrency)
	if err := mergeFxRatesSDMX(rates, jobj); err != nil {
		return nil, err
	}
	return rates, nil
}

func mergeFxRatesSDMX(rates *FxRates, jobj any) error {
	currencies, err := sdmxIDs(jobj, `$.structure.dimensions.series[1].values[*].id`)
	if err != nil {
		return err
	}
	days, err := sdmxIDs(jobj, `$.structure.dimensions.observation[0].values[*].id`)
	if err != nil {
		return err
	}

	path := `$.dataSets[0].series`
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return fmt.Errorf("error parsing SDMX: %q %w", path, err)
	}
	series, ok := jval.(map[string]any)
	if !ok {
		return fmt.Errorf("error parsing SDMX: %q is not an object", path)
	}

	for key, jserie := range series {
		currency, err := sdmxSeriesCurrency(key, currencies)
		if err != nil {
			return err
		}
		jval, err := jsonpath.Get(`$.observations`, jserie)
		if err != nil {
			return fmt.Errorf("error parsing SDMX series %q: %w", key, err)
		}
		observations, ok := jval.(map[string]any)
		if !ok {
			return fmt.Errorf("error parsing SDMX series %q: observations is not an object", key)
		}
		for idx, jobs := range observations {
			var dayIndex int
			if _, err := fmt.Sscanf(idx, "%d", &dayIndex); err != nil || dayIndex < 0 || dayIndex >= len(days) {
				return fmt.Errorf("invalid SDMX observation index %q", idx)
			}
			on, err := ParseDate(days[dayIndex])
			if err != nil {
				return err
			}
			// an observation is a list whose first element is the value,
			// null when nothing was published that day
			jlist, ok := jobs.([]any)
			if !ok || len(jlist) == 0 || jlist[0] == nil {
				continue
			}
			val, ok := jlist[0].(float64)
			if !ok {
				return fmt.Errorf("SDMX observation %s/%s is not a number: %v", currency, on, jlist[0])
			}
			rates.Set(currency, on, decimal.NewFromFloat(val))
		}
	}
	return nil
}

// sdmxIDs collects the "id" of every value of one SDMX dimension.
func sdmxIDs(jobj any, path string) ([]string, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil, fmt.Errorf("error parsing SDMX: %q %w", path, err)
	}
	// jsonpath is never clear about whether it returns a list of answers or a
	// single one: normalize to a list.
	jlist, ok := jval.([]any)
	if !ok {
		jlist = []any{jval}
	}
	ids := make([]string, 0, len(jlist))
	for _, item := range jlist {
		id, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("error parsing SDMX: %q yields a non-string %v", path, item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// sdmxSeriesCurrency resolves the currency dimension from a series key like
// "0:1:0:0:0".
func sdmxSeriesCurrency(key string, currencies []string) (string, error) {
	var freq, currency int
	if _, err := fmt.Sscanf(key, "%d:%d", &freq, &currency); err != nil {
		return "", fmt.Errorf("invalid SDMX series key %q: %w", key, err)
	}
	if currency < 0 || currency >= len(currencies) {
		return "", fmt.Errorf("SDMX series key %q points outside the currency dimension", key)
	}
	return currencies[currency], nil
}

// FetchFxRatesSDMX downloads daily reference rates from the ECB data portal
// for the given currencies against the base currency. Responses are cached on
// disk for the day.
func FetchFxRatesSDMX(baseCurrency string, currencies []string) (*FxRates, error) {
	rates := NewFxRates(baseCurrency)
	client := daily()
	for _, currency := range currencies {
		addr := fmt.Sprintf(
			"https://data-api.ecb.europa.eu/service/data/EXR/D.%s.%s.SP00.A?format=jsondata",
			currency, baseCurrency)
		var jobj any
		if err := jwget(client, addr, &jobj); err != nil {
			return nil, fmt.Errorf("error in wget %q: %w", currency, err)
		}
		if err := mergeFxRatesSDMX(rates, jobj); err != nil {
			return nil, fmt.Errorf("error parsing rates for %q: %w", currency, err)
		}
	}
	return rates, nil
}
