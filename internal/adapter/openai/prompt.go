package openai

// analysisPrompt defines the JSON contract the model must return. Geometry
// is normalized to 0–100 percent of the image box, origin top-left.
const analysisPrompt = `You are a meteorologist analyzing a weather image (satellite, radar, chart or photo).
Respond with a single JSON object and nothing else, using these fields:

{
  "explanation": string,              // plain-language summary, 2-5 sentences
  "locationName": string,             // best guess of the depicted place, "" if unknown
  "temperature": number|null,         // °C
  "windSpeed": number|null,           // km/h
  "windGust": number|null,            // km/h
  "windDirection": string|null,       // compass point, e.g. "NW"
  "precipitationChance": number|null, // percent
  "humidity": number|null,            // percent
  "uvIndex": number|null,
  "center": {"lat": number, "lon": number}|null,
  "zoom": number|null,                // web-map zoom that frames the image
  "imageBounds": {"north": number, "south": number, "east": number, "west": number}|null,
  "stormTrack": [{"hour": number, "intensity": string, "x": number, "y": number}],
  "anomalies": [{"points": [{"x": number, "y": number}], "description": string, "impact": string}],
  "stormSurge": [{"level": "low"|"moderate"|"high"|"extreme", "height": number, "points": [{"x": number, "y": number}]}],
  "isobars": [{"path": string, "pressure": number, "labelX": number, "labelY": number}],
  "windField": [{"x": number, "y": number, "speed": number, "direction": number}]
}

Rules:
- x and y are percentages (0-100) of the image width and height, origin top-left.
- stormTrack hours are forecast hours from now and must be strictly increasing.
- isobar paths use SVG path syntax in the same 0-100 units.
- wind direction is degrees clockwise from north, the direction the wind blows toward.
- Use null or an empty array for anything you cannot determine. Do not invent storms.`
