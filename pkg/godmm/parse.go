// Этот файл содержит разбор сырого ответа прибора на FETCH?.
package godmm

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseResponse разбирает ответ прибора - плоский поток токенов через
// запятую, где каждая запись дает подряд три токена: измерение с
// хвостовым суффиксом единицы (например "1.23456VDC"), метку времени
// ("0.1SECS") и счетчик чтений, который не сохраняется.
//
// При singleSample метки времени не несут смысла и возвращаются как
// одноэлементный нулевой массив без разбора.
func ParseResponse(raw string, singleSample bool) (measurements, timestamps []float64, err error) {
	tokens := strings.Split(strings.TrimSpace(raw), ",")

	for i := 0; i < len(tokens); i += 3 {
		v, err := parseToken(tokens[i])
		if err != nil {
			return nil, nil, fmt.Errorf("измерение %d: %w", i/3+1, err)
		}
		measurements = append(measurements, v)
	}

	if singleSample {
		return measurements, []float64{0}, nil
	}

	for i := 1; i < len(tokens); i += 3 {
		v, err := parseToken(tokens[i])
		if err != nil {
			return nil, nil, fmt.Errorf("метка времени %d: %w", i/3+1, err)
		}
		timestamps = append(timestamps, v)
	}
	return measurements, timestamps, nil
}

// parseToken отсекает хвостовой суффикс единицы измерения и преобразует
// оставшуюся числовую подстроку в число. Суффикс отсекается только с
// конца, поэтому ведущий знак и экспонента ("-5.0E-3ADC") сохраняются.
func parseToken(token string) (float64, error) {
	cleaned := stripUnitSuffix(token)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("токен %q не является числом", token)
	}
	return v, nil
}

// stripUnitSuffix удаляет завершающую последовательность нецифровых
// символов. Токен без такого хвоста возвращается без изменений.
func stripUnitSuffix(token string) string {
	end := len(token)
	for end > 0 && !isDigit(token[end-1]) {
		end--
	}
	if end == 0 {
		return token
	}
	return token[:end]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
