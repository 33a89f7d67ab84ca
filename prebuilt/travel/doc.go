// Package travel implements a coordinator-driven multi-agent travel planner.
//
// A coordinator agent repeatedly picks one of five specialists (travel advisor,
// weather analyst, budget optimizer, local expert and itinerary planner). A
// specialist can ask for fresh information by replying with SearchMarker
// followed by a query; the tools node then runs a categorized search against the
// configured retriever and hands the results back to the coordinator. Once every
// specialist answered, the coordinator says FINAL_PLAN or MaxIterations is hit,
// and compile_plan writes the JSON encoded Plan to the final_plan channel.
package travel
